package platform

import (
	"fmt"
	"strings"
	"time"
)

// Layouts without an offset are interpreted in the caller's location.
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"2006.01.02 15:04:05",
	"2006-01-02",
	"2006.01.02",
}

// ParseTimestamp parses the timestamp formats returned by fitness platforms.
// Values carrying an offset keep it; values without one are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// FromEpoch converts a Unix timestamp in seconds or milliseconds.
func FromEpoch(v int64) time.Time {
	// Seconds stay below 1e11 until the year 5138.
	if v > 1e11 || v < -1e11 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
