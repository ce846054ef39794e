package metrics

import (
	"regexp"

	"github.com/rs/zerolog/log"

	"log-viewer-backend/internal/model"
)

const (
	MetricLogEvent   = "log_event"
	MetricErrorEvent = "error_event"

	maxErrorKeyLen = 256
)

// Extractor derives countable events from records for the time-series
// store.
type Extractor interface {
	ExtractMetricEvents(rec *model.Record) []model.MetricEvent
}

type recordExtractor struct {
	exceptionRegex *regexp.Regexp
}

func NewRecordExtractor() Extractor {
	return &recordExtractor{
		exceptionRegex: regexp.MustCompile(`(?i)(exception|panic|caused by|stack ?trace)`),
	}
}

// ExtractMetricEvents emits one log_event per record and an extra
// error_event for ERROR/FATAL records or messages that look like a
// failure.
func (e *recordExtractor) ExtractMetricEvents(rec *model.Record) []model.MetricEvent {
	if rec == nil {
		return nil
	}

	ts := rec.EffectiveTime()
	level := string(rec.Level)
	if level == "" {
		level = "NONE"
	}

	tags := map[string]string{"level": level}
	if rec.Logger != "" {
		tags["logger"] = rec.Logger
	}
	if rec.Timestamp == nil {
		tags["timestamp_source"] = "received"
	}
	events := []model.MetricEvent{{
		Time:       ts,
		MetricName: MetricLogEvent,
		Service:    rec.Service,
		Tags:       tags,
	}}

	isError := rec.Level == model.LevelError || rec.Level == model.LevelFatal
	if !isError && rec.Level != model.LevelTrace && rec.Level != model.LevelDebug {
		isError = e.exceptionRegex.MatchString(rec.Message)
	}
	if isError {
		errorKey := rec.Message
		if len(errorKey) > maxErrorKeyLen {
			errorKey = errorKey[:maxErrorKeyLen]
		}
		events = append(events, model.MetricEvent{
			Time:       ts,
			MetricName: MetricErrorEvent,
			Service:    rec.Service,
			Tags: map[string]string{
				"level":     level,
				"logger":    rec.Logger,
				"error_key": errorKey,
			},
		})
	}

	log.Trace().Str("service", rec.Service).Int("event_count", len(events)).Msg("Extracted metric events")
	return events
}
