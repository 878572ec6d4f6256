// Package syncstate defines the persisted watermark of the last successful sync.
package syncstate

import (
	"time"
)

// DefaultLookback is how far back the first run looks when no state exists.
const DefaultLookback = 30 * 24 * time.Hour

// Pending is a source activity a previous run failed to transfer.
type Pending struct {
	ID        string
	StartTime time.Time
}

// State is the persisted sync watermark.
//
// Activities skipped after exhausting retries started before the watermark
// the run persists, so they are carried in Pending and offered again to the
// next run regardless of the watermark.
type State struct {
	LastSyncDate time.Time
	Pending      []Pending
}

// Initial returns the state used when nothing has been persisted yet:
// a watermark of now minus lookback.
func Initial(now time.Time, lookback time.Duration) State {
	if lookback < 0 {
		lookback = 0
	}
	return State{LastSyncDate: now.Add(-lookback)}
}

// IsZero reports whether the state carries no watermark.
func (s State) IsZero() bool {
	return s.LastSyncDate.IsZero()
}

// Advance returns a state whose watermark is t, unless that would move the
// watermark backwards, in which case the current state is returned unchanged.
// Pending activities are kept.
func (s State) Advance(t time.Time) State {
	if t.Before(s.LastSyncDate) {
		return s
	}
	s.LastSyncDate = t
	return s
}

// WithPending returns a copy of the state whose pending list is p.
func (s State) WithPending(p []Pending) State {
	if len(p) == 0 {
		s.Pending = nil
		return s
	}
	s.Pending = append([]Pending(nil), p...)
	return s
}

// IsPending reports whether id is carried over from an earlier run.
func (s State) IsPending(id string) bool {
	for _, p := range s.Pending {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ListSince returns the exclusive lower bound for listing source activities:
// the watermark, or just before the earliest pending activity when that is older.
func (s State) ListSince() time.Time {
	since := s.LastSyncDate
	for _, p := range s.Pending {
		if !p.StartTime.After(since) {
			since = p.StartTime.Add(-time.Nanosecond)
		}
	}
	return since
}

// IsCandidate reports whether a source activity belongs to the next transfer
// set: it started after the watermark or is pending.
func (s State) IsCandidate(id string, start time.Time) bool {
	return start.After(s.LastSyncDate) || s.IsPending(id)
}
