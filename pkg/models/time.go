package models

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a timestamp is not ISO-8601.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// The backend emits naive local timestamps (no zone) alongside RFC 3339 ones.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are read
// in local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// DatePart returns the YYYY-MM-DD prefix of an ISO timestamp, or "" when the
// value is too short to carry one.
func DatePart(s string) string {
	if len(s) < len("2006-01-02") {
		return ""
	}

	return s[:len("2006-01-02")]
}
