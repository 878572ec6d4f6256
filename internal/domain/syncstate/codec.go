package syncstate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
)

// Timestamp layouts accepted when decoding. Layouts without a zone are
// interpreted as UTC.
var decodeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

type wireState struct {
	LastSyncDate string        `json:"last_sync_date"`
	Pending      []wirePending `json:"pending,omitempty"`
}

type wirePending struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
}

// Encode serializes the state as {"last_sync_date": "<RFC 3339>"}, followed by
// a "pending" list when activities are carried over.
func Encode(s State) ([]byte, error) {
	w := wireState{LastSyncDate: s.LastSyncDate.Format(time.RFC3339Nano)}
	for _, p := range s.Pending {
		w.Pending = append(w.Pending, wirePending{ID: p.ID, StartTime: p.StartTime.Format(time.RFC3339Nano)})
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a serialized state. Any malformed input yields an error
// wrapping errors.ErrStateCorrupt.
func Decode(data []byte) (State, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return State{}, fmt.Errorf("%w: %v", domainErrors.ErrStateCorrupt, err)
	}

	if strings.TrimSpace(w.LastSyncDate) == "" {
		return State{}, fmt.Errorf("%w: last_sync_date missing", domainErrors.ErrStateCorrupt)
	}

	last, err := parseTimestamp(w.LastSyncDate)
	if err != nil {
		return State{}, fmt.Errorf("%w: unparseable last_sync_date %q", domainErrors.ErrStateCorrupt, w.LastSyncDate)
	}

	s := State{LastSyncDate: last}
	for _, p := range w.Pending {
		start, err := parseTimestamp(p.StartTime)
		if p.ID == "" || err != nil {
			return State{}, fmt.Errorf("%w: invalid pending entry %q", domainErrors.ErrStateCorrupt, p.ID)
		}
		s.Pending = append(s.Pending, Pending{ID: p.ID, StartTime: start})
	}
	return s, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range decodeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
