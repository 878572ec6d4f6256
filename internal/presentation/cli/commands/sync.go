package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appsync "github.com/jbctechsolutions/activitysync/internal/application/sync"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/presentation/cli/output"
)

// RunSummary is the JSON form of a sync run.
type RunSummary struct {
	RunID        string             `json:"run_id"`
	Status       string             `json:"status"`
	Phase        string             `json:"phase"`
	DryRun       bool               `json:"dry_run"`
	Since        time.Time          `json:"since"`
	Watermark    *time.Time         `json:"watermark,omitempty"`
	WindowFrom   *time.Time         `json:"window_from,omitempty"`
	WindowTo     *time.Time         `json:"window_to,omitempty"`
	Candidates   int                `json:"candidates"`
	Duplicates   int                `json:"duplicates"`
	Transferred  int                `json:"transferred"`
	Skipped      int                `json:"skipped"`
	Duration     string             `json:"duration"`
	Error        string             `json:"error,omitempty"`
	Transfers    []TransferSummary  `json:"transfers,omitempty"`
	Matches      []DuplicateSummary `json:"duplicate_matches,omitempty"`
	PendingAfter int                `json:"pending_after"`
}

// TransferSummary is the JSON form of a per-activity outcome.
type TransferSummary struct {
	ActivityID string    `json:"activity_id"`
	StartTime  time.Time `json:"start_time"`
	Outcome    string    `json:"outcome"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// DuplicateSummary pairs a source activity with the destination activity
// that matched it.
type DuplicateSummary struct {
	SourceID      string    `json:"source_id"`
	SourceStart   time.Time `json:"source_start"`
	DestinationID string    `json:"destination_id"`
	DestinationAt time.Time `json:"destination_start"`
	GapSeconds    float64   `json:"gap_seconds"`
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Transfer new activities from iGPSport to Garmin Connect",
		Long: `Run one sync pass.

The pass logs in to both platforms, lists iGPSport rides started after the
last sync date plus any left over from an earlier run, skips rides Garmin
already has, and uploads the rest oldest first. The sync date is advanced
to the start of the pass once it completes, even when some uploads were
skipped; skipped rides are retried next time.

With --dry-run nothing is downloaded, uploaded or saved.`,
		Example: `  # Sync now
  activitysync sync

  # Show what would be uploaded
  activitysync sync --dry-run -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list and filter only, do not transfer or save state")

	return cmd
}

func runSync(cmd *cobra.Command, dryRun bool) error {
	container := GetContainer()
	if container == nil {
		return errors.New("application not initialized")
	}
	formatter := GetFormatter()

	svc, err := container.SyncService(dryRun)
	if err != nil {
		return err
	}

	report, runErr := svc.Run(cmd.Context())
	if report != nil {
		if err := renderReport(formatter, report); err != nil {
			return err
		}
	}
	return runErr
}

func summarize(report *appsync.Report) RunSummary {
	rec := report.Record
	s := RunSummary{
		RunID:        rec.ID,
		Status:       string(rec.Status),
		Phase:        string(rec.Phase),
		DryRun:       report.DryRun,
		Since:        rec.Since,
		Candidates:   rec.Candidates,
		Duplicates:   rec.Duplicates,
		Transferred:  rec.Transferred,
		Skipped:      rec.Skipped,
		Duration:     output.Duration(rec.Duration),
		Error:        rec.ErrorMessage,
		PendingAfter: len(report.State.Pending),
	}
	if !rec.Watermark.IsZero() {
		w := rec.Watermark
		s.Watermark = &w
	}
	if report.Window != (activity.Window{}) {
		from, to := report.Window.From, report.Window.To
		s.WindowFrom, s.WindowTo = &from, &to
	}

	for _, t := range rec.Transfers {
		if t.Outcome == run.OutcomeDuplicate {
			continue
		}
		s.Transfers = append(s.Transfers, TransferSummary{
			ActivityID: t.ActivityID,
			StartTime:  t.StartTime,
			Outcome:    string(t.Outcome),
			Attempts:   t.Attempts,
			Error:      t.ErrorMessage,
		})
	}
	for _, m := range report.Duplicates {
		s.Matches = append(s.Matches, DuplicateSummary{
			SourceID:      m.Source.ID,
			SourceStart:   m.Source.StartTime,
			DestinationID: m.Destination.ID,
			DestinationAt: m.Destination.StartTime,
			GapSeconds:    m.Gap.Seconds(),
		})
	}
	return s
}

func renderReport(f *output.Formatter, report *appsync.Report) error {
	if f.Format() == output.FormatJSON {
		return f.JSON(summarize(report))
	}

	rec := report.Record
	title := "Sync run"
	if report.DryRun {
		title = "Sync run (dry run)"
	}
	f.Header(title)
	f.Item("Run ID", rec.ID)
	f.Item("Since", output.Timestamp(rec.Since))
	if report.Window != (activity.Window{}) {
		f.Item("Garmin window", fmt.Sprintf("%s .. %s", output.Timestamp(report.Window.From), output.Timestamp(report.Window.To)))
	}
	f.Item("Candidates", fmt.Sprintf("%d", rec.Candidates))
	f.Item("Already on Garmin", fmt.Sprintf("%d", rec.Duplicates))
	f.Item("Duration", output.Duration(rec.Duration))

	if len(report.Duplicates) > 0 {
		f.Println("")
		f.Println("%s", f.Bold("Duplicates"))
		for _, m := range report.Duplicates {
			f.BulletItem(fmt.Sprintf("%s at %s matches Garmin %s (%s apart)",
				m.Source.ID, output.Timestamp(m.Source.StartTime), m.Destination.ID, m.Gap))
		}
	}

	rows := transferRows(rec)
	if len(rows) > 0 {
		f.Println("")
		f.Table(output.TableData{
			Columns: []output.TableColumn{
				{Header: "ACTIVITY"},
				{Header: "START"},
				{Header: "OUTCOME"},
				{Header: "ATTEMPTS", Align: output.AlignRight},
				{Header: "ERROR"},
			},
			Rows: rows,
		})
	}

	f.Println("")
	switch {
	case rec.Status == run.StatusFailed:
		f.Error("Run failed in phase %s", rec.Phase)
	case report.DryRun:
		f.Info("%d activities would be transferred, state not saved", len(report.Planned))
	case rec.Skipped > 0:
		f.Warning("Transferred %d, skipped %d (retried next run); sync date now %s",
			rec.Transferred, rec.Skipped, output.Timestamp(rec.Watermark))
	default:
		f.Success("Transferred %d; sync date now %s", rec.Transferred, output.Timestamp(rec.Watermark))
	}
	return nil
}

func transferRows(rec *run.Record) [][]string {
	var rows [][]string
	for _, t := range rec.Transfers {
		if t.Outcome == run.OutcomeDuplicate {
			continue
		}
		attempts := ""
		if t.Attempts > 0 {
			attempts = fmt.Sprintf("%d", t.Attempts)
		}
		rows = append(rows, []string{
			t.ActivityID,
			output.Timestamp(t.StartTime),
			string(t.Outcome),
			attempts,
			t.ErrorMessage,
		})
	}
	return rows
}
