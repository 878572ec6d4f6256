package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRepository implements ports.RunHistoryStore using SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *sql.DB) ports.RunHistoryStore {
	return &RunRepository{db: db}
}

// SaveRun persists a run and its transfer outcomes in one transaction.
// Saving the same run ID twice replaces the earlier rows.
func (r *RunRepository) SaveRun(ctx context.Context, record *run.Record) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", record.ID); err != nil {
		return fmt.Errorf("failed to replace run record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, status, phase, since, watermark, candidates, duplicates,
			transferred, skipped, duration_ns, started_at, completed_at, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		string(record.Status),
		string(record.Phase),
		formatTime(record.Since),
		formatTime(record.Watermark),
		record.Candidates,
		record.Duplicates,
		record.Transferred,
		record.Skipped,
		record.Duration.Nanoseconds(),
		formatTime(record.StartedAt),
		formatTime(record.CompletedAt),
		record.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	for i, t := range record.Transfers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transfer_records (
				run_id, seq, activity_id, start_time, outcome, attempts, duration_ns, error_message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			record.ID,
			i,
			t.ActivityID,
			formatTime(t.StartTime),
			string(t.Outcome),
			t.Attempts,
			t.Duration.Nanoseconds(),
			t.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to save transfer record %s: %w", t.ActivityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run record: %w", err)
	}
	return nil
}

const selectRunColumns = `
	SELECT id, status, phase, since, watermark, candidates, duplicates,
		transferred, skipped, duration_ns, started_at, completed_at, error_message
	FROM runs
`

// ListRuns retrieves runs matching the filter, most recent first.
func (r *RunRepository) ListRuns(ctx context.Context, filter run.Filter) ([]run.Record, error) {
	query := selectRunColumns + " WHERE 1=1"
	args := make([]any, 0)

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, formatTime(filter.Since))
	}

	query += " ORDER BY started_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []run.Record
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return records, nil
}

// GetRun retrieves a run with its transfer outcomes.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*run.Record, error) {
	row := r.db.QueryRowContext(ctx, selectRunColumns+" WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_id, start_time, outcome, attempts, duration_ns, error_message
		FROM transfer_records
		WHERE run_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t := run.Transfer{RunID: id}
		var startTime, outcome string
		var durationNs int64
		var errMsg sql.NullString

		if err := rows.Scan(&t.ActivityID, &startTime, &outcome, &t.Attempts, &durationNs, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan transfer record: %w", err)
		}

		t.StartTime = parseTime(startTime)
		t.Outcome = run.Outcome(outcome)
		t.Duration = time.Duration(durationNs)
		t.ErrorMessage = errMsg.String
		rec.Transfers = append(rec.Transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer records: %w", err)
	}

	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*run.Record, error) {
	var rec run.Record
	var status, phase, since, startedAt, completedAt string
	var watermark, errMsg sql.NullString
	var durationNs int64

	err := row.Scan(
		&rec.ID,
		&status,
		&phase,
		&since,
		&watermark,
		&rec.Candidates,
		&rec.Duplicates,
		&rec.Transferred,
		&rec.Skipped,
		&durationNs,
		&startedAt,
		&completedAt,
		&errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}

	rec.Status = run.Status(status)
	rec.Phase = run.Phase(phase)
	rec.Since = parseTime(since)
	rec.Watermark = parseTime(watermark.String)
	rec.Duration = time.Duration(durationNs)
	rec.StartedAt = parseTime(startedAt)
	rec.CompletedAt = parseTime(completedAt)
	rec.ErrorMessage = errMsg.String

	return &rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
