package storage

import (
	"fmt"
	"time"
)

// Expenses store added_at as local wall-clock text. The fixed width keeps
// lexical order equal to chronological order.
const timestampLayout = "2006-01-02 15:04:05.000000"

// Layouts accepted when reading rows back, including the ones written by the
// single-tenant releases (SQLite CURRENT_TIMESTAMP and ISO timestamps).
var readLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02",
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
