package model

import (
	"encoding/json"
	"strings"
	"time"
)

// UnknownService is the service label of lines without a "name |" prefix.
const UnknownService = "unknown"

type Level string

const (
	LevelTrace Level = "TRACE"
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// Levels lists every severity in ascending order.
var Levels = []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

// ParseLevel normalizes s into a Level. WARNING is folded into WARN.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	}
	return "", false
}

// MarshalJSON encodes an absent level as null.
func (l Level) MarshalJSON() ([]byte, error) {
	if l == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(l))
}

func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = Level(s)
	return nil
}

// Record is one parsed input line. Records are never modified after the
// parser creates them; Raw always holds the untouched input.
type Record struct {
	ID         string     `json:"id"`
	Raw        string     `json:"raw"`
	Timestamp  *time.Time `json:"timestamp"`
	Service    string     `json:"service"`
	Level      Level      `json:"level"`
	Message    string     `json:"message"`
	Logger     string     `json:"logger,omitempty"`
	ReceivedAt time.Time  `json:"receivedAt"`
}

// EffectiveTime is the parsed timestamp when present, otherwise the time
// the line was received.
func (r Record) EffectiveTime() time.Time {
	if r.Timestamp != nil {
		return *r.Timestamp
	}
	return r.ReceivedAt
}
