package ports

import (
	"context"

	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
)

// StateStore persists the sync watermark between runs.
type StateStore interface {
	// Load reads the persisted state.
	// Returns errors.ErrStateNotFound when nothing has been stored yet and
	// errors.ErrStateCorrupt when the stored data cannot be parsed.
	Load(ctx context.Context) (syncstate.State, error)

	// Save overwrites the persisted state atomically.
	Save(ctx context.Context, state syncstate.State) error

	// Location describes where the state lives, for status output.
	Location() string
}

// RunHistoryStore records run outcomes for the status and history commands.
type RunHistoryStore interface {
	// SaveRun persists a run record together with its transfer outcomes.
	SaveRun(ctx context.Context, record *run.Record) error

	// ListRuns returns runs matching the filter, most recent first.
	// Transfers are not populated.
	ListRuns(ctx context.Context, filter run.Filter) ([]run.Record, error)

	// GetRun returns a run with its transfers.
	GetRun(ctx context.Context, id string) (*run.Record, error)
}

// RunMetrics receives the summary of a finished run.
type RunMetrics interface {
	ObserveRun(ctx context.Context, record *run.Record) error
}
