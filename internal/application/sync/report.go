package sync

import (
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
)

// Report is the result of a sync run.
type Report struct {
	Record     *run.Record         // Run summary and per-activity outcomes
	State      syncstate.State     // State to persist; unchanged on dry runs and failures
	Window     activity.Window     // Destination lookup window
	Planned    []activity.Activity // Activities selected for transfer
	Duplicates []activity.Match    // Candidates excluded by the overlap filter
	DryRun     bool
}

// Failed reports whether the run aborted.
func (r *Report) Failed() bool {
	return r.Record != nil && r.Record.Status == run.StatusFailed
}
