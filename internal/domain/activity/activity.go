// Package activity defines the activity domain model and duplicate detection.
package activity

import (
	"fmt"
	"sort"
	"time"
)

// Platform identifies which side of the sync an activity was fetched from.
type Platform string

const (
	PlatformSource      Platform = "source"      // Platform activities are copied from
	PlatformDestination Platform = "destination" // Platform activities are copied to
)

// DefaultTolerance is the start-time window within which two activities are the same.
const DefaultTolerance = 5 * time.Minute

// Activity is a recorded exercise session as listed by a platform.
// Activities are values and are not modified after they are fetched.
type Activity struct {
	ID        string        // Platform-specific identifier
	StartTime time.Time     // Start time, timezone-aware
	Duration  time.Duration // Elapsed time, zero when unknown
	Platform  Platform      // Platform the activity was listed from
	Name      string        // Display name, informational only
}

// New creates an Activity with the given identity and start time.
func New(id string, start time.Time, platform Platform) Activity {
	return Activity{
		ID:        id,
		StartTime: start,
		Platform:  platform,
	}
}

// String returns a short human-readable representation.
func (a Activity) String() string {
	return fmt.Sprintf("%s/%s@%s", a.Platform, a.ID, a.StartTime.Format(time.RFC3339))
}

// SortChronologically sorts activities oldest first. Ties keep their input order.
func SortChronologically(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].StartTime.Before(activities[j].StartTime)
	})
}

// Window is a closed time range [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies within the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// LookupWindow returns the destination listing window for a sync that
// covers everything after since, padded by tolerance on both ends.
func LookupWindow(since, now time.Time, tolerance time.Duration) Window {
	if tolerance < 0 {
		tolerance = 0
	}
	return Window{
		From: since.Add(-tolerance),
		To:   now.Add(tolerance),
	}
}
