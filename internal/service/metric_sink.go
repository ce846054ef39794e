package service

import (
	"context"

	"log-viewer-backend/internal/metrics"
	"log-viewer-backend/internal/model"
	"log-viewer-backend/internal/timescaledb"
)

// MetricSink turns record batches into metric events for the time-series
// store.
type MetricSink struct {
	extractor metrics.Extractor
	store     timescaledb.MetricStore
}

func NewMetricSink(extractor metrics.Extractor, store timescaledb.MetricStore) *MetricSink {
	return &MetricSink{extractor: extractor, store: store}
}

func (s *MetricSink) Name() string { return "timescaledb" }

func (s *MetricSink) WriteRecords(ctx context.Context, records []model.Record) error {
	events := make([]model.MetricEvent, 0, len(records)*2)
	for i := range records {
		events = append(events, s.extractor.ExtractMetricEvents(&records[i])...)
	}
	return s.store.StoreMetricEvents(ctx, events)
}
