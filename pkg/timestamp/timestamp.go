// Package timestamp provides standardized timestamp handling for log records.
//
// The canonical wire format is RFC 3339 in UTC. Parsing is deliberately
// permissive: legacy writers emitted a handful of near-ISO variants and the
// read path must still be able to order those records.
package timestamp

import (
	"fmt"
	"time"
)

// Layouts accepted by Parse, tried in order. RFC3339Nano subsumes RFC3339
// for parsing but both are listed for clarity.
var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Now returns the current time formatted as the canonical wire format.
func Now() string {
	return Format(time.Now())
}

// Format renders a time.Time in the canonical wire format (RFC 3339, UTC).
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Parse converts a wire timestamp into a time.Time in UTC.
func Parse(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// Valid reports whether s parses as an accepted timestamp format.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
