// Package run provides domain types describing the outcome of sync runs.
package run

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal status of a run.
type Status string

const (
	StatusCompleted Status = "completed" // Reached DONE and persisted state
	StatusFailed    Status = "failed"    // Aborted by a fatal error
	StatusDryRun    Status = "dry_run"   // Listed and filtered only
)

// Outcome is what happened to a single source activity during a run.
type Outcome string

const (
	OutcomeTransferred    Outcome = "transferred"     // Uploaded to the destination
	OutcomeAlreadyPresent Outcome = "already_present" // Destination rejected the upload as a duplicate
	OutcomeDuplicate      Outcome = "duplicate"       // Excluded by the overlap filter
	OutcomeSkipped        Outcome = "skipped"         // Failed past the retry ceiling, retried next run
	OutcomePlanned        Outcome = "planned"         // Would be transferred (dry run)
)

// Phase is a step of the sync state machine.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseAuthenticated Phase = "authenticated"
	PhaseListed        Phase = "listed"
	PhaseFiltered      Phase = "filtered"
	PhaseTransferring  Phase = "transferring"
	PhaseDone          Phase = "done"
)

// Record is a single sync run.
type Record struct {
	ID             string        // Unique run ID
	Status         Status        // Terminal status
	Phase          Phase         // Last phase reached
	Since          time.Time     // Watermark the run started from
	SinceDefaulted bool          // Since is the default lookback, not persisted state
	Watermark      time.Time     // Watermark persisted at the end (zero if not advanced)
	Candidates     int           // Source activities after the watermark
	Duplicates     int           // Candidates excluded by the overlap filter
	Transferred    int           // Activities uploaded
	Skipped        int           // Activities that failed past the retry ceiling
	Duration       time.Duration // Wall-clock duration
	StartedAt      time.Time     // When the run started
	CompletedAt    time.Time     // When the run finished
	ErrorMessage   string        // Fatal error, if any
	Transfers      []Transfer    // Per-activity outcomes
}

// Transfer is the outcome for a single source activity.
type Transfer struct {
	RunID        string        // Parent run ID
	ActivityID   string        // Source activity ID
	StartTime    time.Time     // Source activity start time
	Outcome      Outcome       // What happened
	Attempts     int           // Upload or download attempts made
	Duration     time.Duration // Time spent on this activity
	ErrorMessage string        // Last error for skipped activities
}

// NewRecord creates a record with a fresh ID.
func NewRecord(startedAt time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Phase:     PhaseInit,
		StartedAt: startedAt,
	}
}

// AddTransfer appends a per-activity outcome and updates the counters.
func (r *Record) AddTransfer(t Transfer) {
	t.RunID = r.ID
	r.Transfers = append(r.Transfers, t)
	switch t.Outcome {
	case OutcomeTransferred, OutcomeAlreadyPresent:
		r.Transferred++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDuplicate:
		r.Duplicates++
	}
}

// Finish stamps the completion time, duration and status.
func (r *Record) Finish(status Status, completedAt time.Time, err error) {
	r.Status = status
	r.CompletedAt = completedAt
	r.Duration = completedAt.Sub(r.StartedAt)
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// SkippedIDs returns the IDs of activities left for the next run.
func (r *Record) SkippedIDs() []string {
	var out []string
	for _, t := range r.Transfers {
		if t.Outcome == OutcomeSkipped {
			out = append(out, t.ActivityID)
		}
	}
	return out
}

// Filter selects records from history.
type Filter struct {
	Status Status
	Since  time.Time
	Limit  int
}
