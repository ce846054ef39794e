package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimeFlexible accepts RFC 3339, zone-less ISO dates (read as UTC)
// or epoch milliseconds. The result is always in UTC.
func ParseTimeFlexible(timeStr string) (time.Time, error) {
	timeStr = strings.TrimSpace(timeStr)
	if t, err := time.Parse(time.RFC3339Nano, timeStr); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, timeStr, time.UTC); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
}

// ParseOptionalTime is ParseTimeFlexible for optional parameters: an
// empty string yields nil.
func ParseOptionalTime(timeStr string) (*time.Time, error) {
	if strings.TrimSpace(timeStr) == "" {
		return nil, nil
	}
	t, err := ParseTimeFlexible(timeStr)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
