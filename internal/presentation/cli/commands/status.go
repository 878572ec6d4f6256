package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/activitysync/internal/application"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/presentation/cli/output"
)

// State health values reported by status.
const (
	StateOK       = "ok"
	StateNotFound = "not_found"
	StateCorrupt  = "corrupt"
	StateError    = "error"
)

// PendingSummary is an activity carried over for retry.
type PendingSummary struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
}

// SyncStatus is the JSON form of the status command.
type SyncStatus struct {
	StateLocation  string           `json:"state_location"`
	State          string           `json:"state"`
	StateError     string           `json:"state_error,omitempty"`
	LastSyncDate   *time.Time       `json:"last_sync_date,omitempty"`
	Pending        []PendingSummary `json:"pending"`
	HistoryEnabled bool             `json:"history_enabled"`
	LastRun        *RunRow          `json:"last_run,omitempty"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state and the last run",
		Long: `Display where the sync state lives, the last sync date, activities
waiting to be retried, and the outcome of the most recent run.

Does not contact iGPSport or Garmin and needs no credentials.`,
		Example: `  activitysync status
  activitysync status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}
			status, err := getSyncStatus(cmd.Context(), container)
			if err != nil {
				return err
			}
			return printStatus(GetFormatter(), status)
		},
	}
}

// getSyncStatus reads the persisted state and the latest history entry.
func getSyncStatus(ctx context.Context, container *application.Container) (SyncStatus, error) {
	store := container.StateStore()
	status := SyncStatus{
		StateLocation: store.Location(),
		Pending:       []PendingSummary{},
	}

	state, err := store.Load(ctx)
	switch {
	case err == nil:
		status.State = StateOK
		if !state.LastSyncDate.IsZero() {
			t := state.LastSyncDate
			status.LastSyncDate = &t
		}
		for _, p := range state.Pending {
			status.Pending = append(status.Pending, PendingSummary{ID: p.ID, StartTime: p.StartTime})
		}
	case errors.Is(err, domainErrors.ErrStateNotFound):
		status.State = StateNotFound
	case errors.Is(err, domainErrors.ErrStateCorrupt):
		status.State = StateCorrupt
		status.StateError = err.Error()
	default:
		status.State = StateError
		status.StateError = err.Error()
	}

	history := container.History()
	if history == nil {
		return status, nil
	}
	status.HistoryEnabled = true

	runs, err := history.ListRuns(ctx, run.Filter{Limit: 1})
	if err != nil {
		return status, fmt.Errorf("failed to read run history: %w", err)
	}
	if len(runs) > 0 {
		row := toRunRow(runs[0])
		status.LastRun = &row
	}
	return status, nil
}

func printStatus(f *output.Formatter, status SyncStatus) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(status)
	}

	f.Header("Sync state")
	f.Item("Location", status.StateLocation)
	switch status.State {
	case StateOK:
		last := "never"
		if status.LastSyncDate != nil {
			last = output.Timestamp(*status.LastSyncDate)
		}
		f.Item("Last sync date", last)
	case StateNotFound:
		f.Item("Last sync date", "never (next run looks back the default lookback)")
	default:
		f.Item("Last sync date", f.Colorize("unreadable: "+status.StateError, output.ColorYellow))
	}
	f.Item("Pending retries", fmt.Sprintf("%d", len(status.Pending)))
	for _, p := range status.Pending {
		f.BulletItem(fmt.Sprintf("%s (started %s)", p.ID, output.Timestamp(p.StartTime)))
	}

	f.Println("")
	f.Header("Last run")
	switch {
	case !status.HistoryEnabled:
		f.Println("  %s", f.Dim("run history is disabled"))
	case status.LastRun == nil:
		f.Println("  %s", f.Dim("no runs recorded"))
	default:
		r := status.LastRun
		f.Item("Run ID", r.RunID)
		f.Item("Status", colorStatus(f, r.Status))
		f.Item("Started", output.Timestamp(r.StartedAt))
		f.Item("Duration", r.Duration)
		f.Item("Transferred", fmt.Sprintf("%d", r.Transferred))
		f.Item("Skipped", fmt.Sprintf("%d", r.Skipped))
		if r.Error != "" {
			f.Item("Error", r.Error)
		}
	}
	return nil
}

func colorStatus(f *output.Formatter, status string) string {
	switch run.Status(status) {
	case run.StatusCompleted:
		return f.Colorize(status, output.ColorGreen)
	case run.StatusFailed:
		return f.Colorize(status, output.ColorRed)
	default:
		return f.Colorize(status, output.ColorCyan)
	}
}
