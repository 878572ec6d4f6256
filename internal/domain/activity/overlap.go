package activity

import "time"

// Match records a source activity that already exists on the destination.
type Match struct {
	Source      Activity
	Destination Activity
	Gap         time.Duration // Absolute start-time difference
}

// OverlapWindow is the symmetric start-time tolerance used for duplicate detection.
type OverlapWindow struct {
	Tolerance time.Duration
}

// NewOverlapWindow returns a window with the given tolerance. Negative
// tolerances are clamped to zero, which means only identical start times match.
func NewOverlapWindow(tolerance time.Duration) OverlapWindow {
	if tolerance < 0 {
		tolerance = 0
	}
	return OverlapWindow{Tolerance: tolerance}
}

// Overlaps reports whether a and b start within the tolerance of each other.
func (w OverlapWindow) Overlaps(a, b Activity) bool {
	return absDuration(a.StartTime.Sub(b.StartTime)) <= w.Tolerance
}

// Partition splits source into activities with no counterpart in destination
// (kept, in input order) and activities that matched one (duplicates).
// Only start times are compared. The first matching destination activity is
// reported for each duplicate.
func (w OverlapWindow) Partition(source, destination []Activity) (kept []Activity, duplicates []Match) {
	kept = make([]Activity, 0, len(source))
	for _, s := range source {
		matched := false
		for _, d := range destination {
			if w.Overlaps(s, d) {
				duplicates = append(duplicates, Match{
					Source:      s,
					Destination: d,
					Gap:         absDuration(s.StartTime.Sub(d.StartTime)),
				})
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, s)
		}
	}
	return kept, duplicates
}

// FilterNew returns the subsequence of source that has no destination activity
// starting within tolerance of it. The result preserves the order of source.
func FilterNew(source, destination []Activity, tolerance time.Duration) []Activity {
	kept, _ := NewOverlapWindow(tolerance).Partition(source, destination)
	return kept
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
