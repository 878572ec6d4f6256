package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/presentation/cli/output"
)

// RunRow is the JSON form of a recorded run.
type RunRow struct {
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	Phase       string            `json:"phase"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    string            `json:"duration"`
	Since       time.Time         `json:"since"`
	Watermark   *time.Time        `json:"watermark,omitempty"`
	Candidates  int               `json:"candidates"`
	Duplicates  int               `json:"duplicates"`
	Transferred int               `json:"transferred"`
	Skipped     int               `json:"skipped"`
	Error       string            `json:"error,omitempty"`
	Transfers   []TransferSummary `json:"transfers,omitempty"`
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	var (
		limit  int
		status string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent sync runs",
		Long: `List recorded sync runs, most recent first.

Pass a run ID to show the per-activity outcomes of that run.`,
		Example: `  activitysync history
  activitysync history --limit 50 --status failed
  activitysync history 0b6c4a7e-5f55-4d8b-9d9e-3c1f1f3e2a10 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container := GetContainer()
			if container == nil {
				return errors.New("application not initialized")
			}
			store := container.History()
			if store == nil {
				return errors.New("run history is disabled (history.enabled: false)")
			}
			if len(args) == 1 {
				return showRun(cmd.Context(), store, args[0])
			}
			return listRuns(cmd.Context(), store, run.Filter{Status: run.Status(status), Limit: limit})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&status, "status", "", "only show runs with this status: completed, failed, dry_run")

	return cmd
}

func toRunRow(r run.Record) RunRow {
	row := RunRow{
		RunID:       r.ID,
		Status:      string(r.Status),
		Phase:       string(r.Phase),
		StartedAt:   r.StartedAt,
		Duration:    output.Duration(r.Duration),
		Since:       r.Since,
		Candidates:  r.Candidates,
		Duplicates:  r.Duplicates,
		Transferred: r.Transferred,
		Skipped:     r.Skipped,
		Error:       r.ErrorMessage,
	}
	if !r.Watermark.IsZero() {
		w := r.Watermark
		row.Watermark = &w
	}
	for _, t := range r.Transfers {
		row.Transfers = append(row.Transfers, TransferSummary{
			ActivityID: t.ActivityID,
			StartTime:  t.StartTime,
			Outcome:    string(t.Outcome),
			Attempts:   t.Attempts,
			Error:      t.ErrorMessage,
		})
	}
	return row
}

func listRuns(ctx context.Context, store ports.RunHistoryStore, filter run.Filter) error {
	switch filter.Status {
	case "", run.StatusCompleted, run.StatusFailed, run.StatusDryRun:
	default:
		return fmt.Errorf("unknown run status %q", filter.Status)
	}

	runs, err := store.ListRuns(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}

	f := GetFormatter()
	rows := make([]RunRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, toRunRow(r))
	}

	if f.Format() == output.FormatJSON {
		return f.JSON(rows)
	}

	if len(rows) == 0 {
		return f.Info("No runs recorded")
	}

	table := output.TableData{
		Columns: []output.TableColumn{
			{Header: "STARTED"},
			{Header: "STATUS"},
			{Header: "CANDIDATES", Align: output.AlignRight},
			{Header: "DUPLICATES", Align: output.AlignRight},
			{Header: "TRANSFERRED", Align: output.AlignRight},
			{Header: "SKIPPED", Align: output.AlignRight},
			{Header: "DURATION", Align: output.AlignRight},
			{Header: "RUN ID"},
		},
	}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			output.Timestamp(r.StartedAt),
			r.Status,
			fmt.Sprintf("%d", r.Candidates),
			fmt.Sprintf("%d", r.Duplicates),
			fmt.Sprintf("%d", r.Transferred),
			fmt.Sprintf("%d", r.Skipped),
			r.Duration,
			r.RunID,
		})
	}
	return f.Table(table)
}

func showRun(ctx context.Context, store ports.RunHistoryStore, id string) error {
	record, err := store.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", id, err)
	}

	f := GetFormatter()
	row := toRunRow(*record)
	if f.Format() == output.FormatJSON {
		return f.JSON(row)
	}

	f.Header("Run " + row.RunID)
	f.Item("Status", colorStatus(f, row.Status))
	f.Item("Phase", row.Phase)
	f.Item("Started", output.Timestamp(row.StartedAt))
	f.Item("Duration", row.Duration)
	f.Item("Since", output.Timestamp(row.Since))
	if row.Watermark != nil {
		f.Item("Watermark", output.Timestamp(*row.Watermark))
	}
	if row.Error != "" {
		f.Item("Error", row.Error)
	}

	if len(row.Transfers) == 0 {
		return nil
	}
	f.Println("")
	table := output.TableData{
		Columns: []output.TableColumn{
			{Header: "ACTIVITY"},
			{Header: "START"},
			{Header: "OUTCOME"},
			{Header: "ATTEMPTS", Align: output.AlignRight},
			{Header: "ERROR"},
		},
	}
	for _, t := range row.Transfers {
		table.Rows = append(table.Rows, []string{
			t.ActivityID,
			output.Timestamp(t.StartTime),
			t.Outcome,
			fmt.Sprintf("%d", t.Attempts),
			t.Error,
		})
	}
	return f.Table(table)
}
