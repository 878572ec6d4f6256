// Package sync orchestrates a single source to destination sync run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/application/retry"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/tracing"
)

// Options tune the sync algorithm.
type Options struct {
	Tolerance           time.Duration // Start-time window for duplicate detection
	DefaultLookback     time.Duration // How far back a run without state looks
	PauseBetweenUploads time.Duration // Wait between consecutive transfers
	Retry               retry.Policy  // Policy for every platform call
	DryRun              bool          // List and filter only
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Tolerance:           activity.DefaultTolerance,
		DefaultLookback:     syncstate.DefaultLookback,
		PauseBetweenUploads: 2 * time.Second,
		Retry:               retry.DefaultPolicy(),
	}
}

// ServiceConfig holds the collaborators of the sync service.
// Source, Destination and State are required.
type ServiceConfig struct {
	Source      ports.SourcePlatform
	Destination ports.DestinationPlatform
	State       ports.StateStore
	History     ports.RunHistoryStore // Optional
	Metrics     ports.RunMetrics      // Optional
	Logger      *logging.Logger
	Tracer      *tracing.Tracer
	Options     Options

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Service runs sync passes.
type Service struct {
	source  ports.SourcePlatform
	dest    ports.DestinationPlatform
	state   ports.StateStore
	history ports.RunHistoryStore
	metrics ports.RunMetrics
	logger  *logging.Logger
	tracer  *tracing.Tracer
	opts    Options
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewService creates a sync service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil || cfg.Destination == nil || cfg.State == nil {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "source, destination and state store are required", nil)
	}
	if err := cfg.Options.Retry.Validate(); err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "invalid retry policy", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Service{
		source:  cfg.Source,
		dest:    cfg.Destination,
		state:   cfg.State,
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  logger,
		tracer:  tracer,
		opts:    cfg.Options,
		now:     now,
		sleep:   sleep,
	}, nil
}

// Run loads the persisted state, executes a pass and saves the new state.
// Dry runs and failed runs leave the persisted state untouched. The run is
// recorded in history and metrics either way.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	startedAt := s.now()

	state, persisted, err := s.LoadState(ctx, startedAt)
	if err != nil {
		record := run.NewRecord(startedAt)
		ctx = logging.WithRunID(ctx, record.ID)
		record.Finish(run.StatusFailed, s.now(), err)
		logging.LogRunFailed(ctx, s.logger, string(record.Phase), err, record.Duration)
		report := &Report{Record: record, DryRun: s.opts.DryRun}
		s.observe(ctx, record)
		return report, err
	}

	report, err := s.Execute(ctx, state, startedAt)
	report.Record.SinceDefaulted = !persisted
	ctx = logging.WithRunID(ctx, report.Record.ID)

	if err == nil && !s.opts.DryRun {
		if saveErr := s.state.Save(ctx, report.State); saveErr != nil {
			err = domainErrors.NewError(domainErrors.CodeState, "failed to persist sync state", saveErr)
			report.Record.Watermark = time.Time{}
			report.Record.Finish(run.StatusFailed, s.now(), err)
			logging.LogRunFailed(ctx, s.logger, string(report.Record.Phase), err, report.Record.Duration)
		} else {
			s.logger.InfoContext(ctx, "sync state saved",
				"last_sync_date", report.State.LastSyncDate.Format(time.RFC3339),
				"location", s.state.Location(),
			)
		}
	}

	s.observe(ctx, report.Record)
	return report, err
}

// LoadState reads the persisted state. Missing or corrupt state falls back to
// now minus the default lookback and persisted is false; any other read
// failure is fatal.
func (s *Service) LoadState(ctx context.Context, now time.Time) (state syncstate.State, persisted bool, err error) {
	state, err = s.state.Load(ctx)
	switch {
	case err == nil && !state.IsZero():
		return state, true, nil
	case err == nil, errors.Is(err, domainErrors.ErrStateNotFound):
		initial := syncstate.Initial(now, s.opts.DefaultLookback)
		s.logger.InfoContext(ctx, "no sync state, using default lookback",
			"location", s.state.Location(),
			"last_sync_date", initial.LastSyncDate.Format(time.RFC3339),
		)
		return initial, false, nil
	case errors.Is(err, domainErrors.ErrStateCorrupt):
		initial := syncstate.Initial(now, s.opts.DefaultLookback)
		s.logger.WarnContext(ctx, "sync state unreadable, using default lookback",
			"location", s.state.Location(),
			"error", err.Error(),
			"last_sync_date", initial.LastSyncDate.Format(time.RFC3339),
		)
		return initial, false, nil
	default:
		return syncstate.State{}, false, domainErrors.NewError(domainErrors.CodeState, "failed to load sync state", err)
	}
}

// Execute performs one pass from state, treating startedAt as the run start.
// It does not read or write persisted state; the state to persist is returned
// in the report. The report is non-nil even when an error is returned.
func (s *Service) Execute(ctx context.Context, state syncstate.State, startedAt time.Time) (*Report, error) {
	record := run.NewRecord(startedAt)
	record.Since = state.LastSyncDate
	ctx = logging.WithRunID(ctx, record.ID)

	report := &Report{
		Record: record,
		State:  state,
		Window: activity.LookupWindow(state.ListSince(), startedAt, s.opts.Tolerance),
		DryRun: s.opts.DryRun,
	}

	ctx, runSpan := s.tracer.StartRunSpan(ctx, record.ID, s.opts.DryRun)
	runSpan.SetWindow(report.Window.From, report.Window.To)
	logging.LogRunStart(ctx, s.logger, state.LastSyncDate, s.opts.DryRun)
	if len(state.Pending) > 0 {
		s.logger.InfoContext(ctx, "retrying activities skipped by an earlier run", "pending", len(state.Pending))
	}

	fail := func(err error) (*Report, error) {
		record.Finish(run.StatusFailed, s.now(), err)
		runSpan.SetCounts(record.Candidates, record.Duplicates, record.Transferred, record.Skipped)
		runSpan.EndWithError(err)
		logging.LogRunFailed(ctx, s.logger, string(record.Phase), err, record.Duration)
		return report, err
	}

	if err := s.authenticate(ctx); err != nil {
		return fail(err)
	}
	record.Phase = run.PhaseAuthenticated

	candidates, existing, err := s.list(ctx, state, report.Window)
	if err != nil {
		return fail(err)
	}
	record.Phase = run.PhaseListed
	record.Candidates = len(candidates)

	kept, duplicates := activity.NewOverlapWindow(s.opts.Tolerance).Partition(candidates, existing)
	for _, m := range duplicates {
		logging.LogDuplicate(logging.WithActivityID(ctx, m.Source.ID), s.logger, m.Source.ID, m.Destination.ID, m.Gap)
		record.AddTransfer(run.Transfer{
			ActivityID: m.Source.ID,
			StartTime:  m.Source.StartTime,
			Outcome:    run.OutcomeDuplicate,
		})
	}
	report.Planned = kept
	report.Duplicates = duplicates
	record.Phase = run.PhaseFiltered

	s.logger.InfoContext(ctx, "activities filtered",
		"candidates", len(candidates),
		"destination", len(existing),
		"duplicates", len(duplicates),
		"to_transfer", len(kept),
	)

	if s.opts.DryRun {
		for _, a := range kept {
			record.AddTransfer(run.Transfer{
				ActivityID: a.ID,
				StartTime:  a.StartTime,
				Outcome:    run.OutcomePlanned,
			})
		}
		record.Finish(run.StatusDryRun, s.now(), nil)
		runSpan.SetCounts(record.Candidates, record.Duplicates, record.Transferred, record.Skipped)
		runSpan.End()
		logging.LogRunComplete(ctx, s.logger, record.Candidates, record.Duplicates, record.Transferred, record.Skipped, record.Duration)
		return report, nil
	}

	record.Phase = run.PhaseTransferring
	if err := s.transferAll(ctx, kept, record); err != nil {
		return fail(err)
	}

	report.State = state.Advance(startedAt).WithPending(pendingFrom(record))
	record.Watermark = report.State.LastSyncDate
	record.Phase = run.PhaseDone
	record.Finish(run.StatusCompleted, s.now(), nil)

	runSpan.SetCounts(record.Candidates, record.Duplicates, record.Transferred, record.Skipped)
	runSpan.End()
	logging.LogRunComplete(ctx, s.logger, record.Candidates, record.Duplicates, record.Transferred, record.Skipped, record.Duration)
	if ids := record.SkippedIDs(); len(ids) > 0 {
		s.logger.WarnContext(ctx, "some activities were skipped and will be retried next run",
			"outcome", logging.OutcomeSkipped,
			"activity_ids", ids,
		)
	}

	return report, nil
}

// authenticate logs in to the source, then the destination. Transient
// failures are retried; anything left over is fatal.
func (s *Service) authenticate(ctx context.Context) error {
	ctx, span := s.tracer.StartPhaseSpan(ctx, string(run.PhaseAuthenticated))

	for _, p := range []struct {
		name  string
		login func(context.Context) error
	}{
		{s.source.Name(), s.source.Login},
		{s.dest.Name(), s.dest.Login},
	} {
		pctx := logging.WithPlatform(ctx, p.name)
		_, err := retry.Do(pctx, s.opts.Retry, p.login, retry.WithOnRetry(s.logRetry(pctx, "login")))
		if err != nil {
			err = fatal(domainErrors.CodeAuth, fmt.Sprintf("%s login failed", p.name), err)
			span.EndWithError(err)
			return err
		}
		s.logger.DebugContext(pctx, "authenticated")
	}

	span.End()
	return nil
}

// list fetches source candidates for state, oldest first, and the
// destination activities inside window.
func (s *Service) list(ctx context.Context, state syncstate.State, window activity.Window) ([]activity.Activity, []activity.Activity, error) {
	ctx, span := s.tracer.StartPhaseSpan(ctx, string(run.PhaseListed))

	sctx := logging.WithPlatform(ctx, s.source.Name())
	listed, _, err := retry.DoValue(sctx, s.opts.Retry, func(ctx context.Context) ([]activity.Activity, error) {
		return s.source.ListActivities(ctx, state.ListSince())
	}, retry.WithOnRetry(s.reauthOnRetry(sctx, "list", s.source.Login)))
	if err != nil {
		err = fatal(domainErrors.CodeListing, fmt.Sprintf("%s listing failed", s.source.Name()), err)
		span.EndWithError(err)
		return nil, nil, err
	}

	candidates := make([]activity.Activity, 0, len(listed))
	for _, a := range listed {
		if state.IsCandidate(a.ID, a.StartTime) {
			candidates = append(candidates, a)
		}
	}
	activity.SortChronologically(candidates)

	dctx := logging.WithPlatform(ctx, s.dest.Name())
	existing, _, err := retry.DoValue(dctx, s.opts.Retry, func(ctx context.Context) ([]activity.Activity, error) {
		return s.dest.ListActivities(ctx, window.From, window.To)
	}, retry.WithOnRetry(s.reauthOnRetry(dctx, "list", s.dest.Login)))
	if err != nil {
		err = fatal(domainErrors.CodeListing, fmt.Sprintf("%s listing failed", s.dest.Name()), err)
		span.EndWithError(err)
		return nil, nil, err
	}

	span.SetCount("candidates", len(candidates))
	span.SetCount("destination", len(existing))
	span.End()

	s.logger.InfoContext(ctx, "activities listed",
		"candidates", len(candidates),
		"destination", len(existing),
		"window_from", window.From.Format(time.RFC3339),
		"window_to", window.To.Format(time.RFC3339),
	)
	return candidates, existing, nil
}

// transferAll copies activities in order. Per-activity failures are recorded
// as skipped; only cancellation stops the loop.
func (s *Service) transferAll(ctx context.Context, activities []activity.Activity, record *run.Record) error {
	ctx, span := s.tracer.StartPhaseSpan(ctx, string(run.PhaseTransferring))
	span.SetCount("activities", len(activities))

	for i, a := range activities {
		if i > 0 && s.opts.PauseBetweenUploads > 0 {
			if err := s.sleep(ctx, s.opts.PauseBetweenUploads); err != nil {
				span.EndWithError(err)
				return err
			}
		}

		t, err := s.transfer(ctx, a)
		if err != nil {
			span.EndWithError(err)
			return err
		}
		record.AddTransfer(t)
	}

	span.End()
	return nil
}

// transfer downloads one activity and uploads it. The returned error is
// non-nil only when ctx is done; other failures become a skipped transfer.
func (s *Service) transfer(ctx context.Context, a activity.Activity) (run.Transfer, error) {
	ctx = logging.WithActivityID(ctx, a.ID)
	ctx, span := s.tracer.StartTransferSpan(ctx, a.ID, a.StartTime)
	began := s.now()

	result := run.Transfer{ActivityID: a.ID, StartTime: a.StartTime}

	skip := func(stage string, attempts int, err error) (run.Transfer, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.EndWithError(ctxErr)
			return result, ctxErr
		}
		err = domainErrors.WithContext(
			domainErrors.NewError(domainErrors.CodeTransfer, stage+" failed", err),
			"activity_id", a.ID,
		)
		logging.LogTransferSkipped(ctx, s.logger, stage, attempts, err)
		result.Outcome = run.OutcomeSkipped
		result.Attempts = attempts
		result.Duration = s.now().Sub(began)
		result.ErrorMessage = err.Error()
		span.SetResult(string(result.Outcome), attempts, 0)
		span.EndWithError(err)
		return result, nil
	}

	sctx := logging.WithPlatform(ctx, s.source.Name())
	data, downloads, err := retry.DoValue(sctx, s.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return s.source.DownloadFile(ctx, a.ID)
	}, retry.WithOnRetry(s.reauthOnRetry(sctx, "download", s.source.Login)))
	if err != nil {
		return skip("download", downloads, err)
	}

	dctx := logging.WithPlatform(ctx, s.dest.Name())
	upload, uploads, err := retry.DoValue(dctx, s.opts.Retry, func(ctx context.Context) (ports.UploadResult, error) {
		return s.dest.UploadFile(ctx, UploadName(a), data)
	}, retry.WithOnRetry(s.reauthOnRetry(dctx, "upload", s.dest.Login)))
	if err != nil {
		return skip("upload", downloads+uploads, err)
	}

	result.Outcome = run.OutcomeTransferred
	if upload.Duplicate {
		result.Outcome = run.OutcomeAlreadyPresent
	}
	result.Attempts = downloads + uploads
	result.Duration = s.now().Sub(began)

	span.SetResult(string(result.Outcome), result.Attempts, len(data))
	span.End()

	s.logger.InfoContext(ctx, "activity transferred",
		"outcome", string(result.Outcome),
		"start_time", a.StartTime.Format(time.RFC3339),
		"bytes", len(data),
		"upload_id", upload.UploadID,
		"attempts", result.Attempts,
	)
	return result, nil
}

// pendingFrom collects the activities a run skipped.
func pendingFrom(record *run.Record) []syncstate.Pending {
	var out []syncstate.Pending
	for _, t := range record.Transfers {
		if t.Outcome == run.OutcomeSkipped {
			out = append(out, syncstate.Pending{ID: t.ActivityID, StartTime: t.StartTime})
		}
	}
	return out
}

// UploadName is the file name an activity is uploaded under.
func UploadName(a activity.Activity) string {
	return a.ID + ".fit"
}

func (s *Service) logRetry(ctx context.Context, operation string) func(retry.Attempt) {
	return func(at retry.Attempt) {
		logging.LogRetry(ctx, s.logger, operation, at.Number, at.Delay, at.Err)
		tracing.RecordRetry(ctx, operation, at.Number, at.Delay, at.Err)
	}
}

// reauthOnRetry logs the failed attempt and, when the platform rejected the
// session, logs in again before the next attempt.
func (s *Service) reauthOnRetry(ctx context.Context, operation string, login func(context.Context) error) func(retry.Attempt) {
	logRetry := s.logRetry(ctx, operation)
	return func(at retry.Attempt) {
		logRetry(at)
		if !errors.Is(at.Err, domainErrors.ErrUnauthorized) {
			return
		}
		if err := login(ctx); err != nil {
			s.logger.WarnContext(ctx, "re-authentication failed", "error", err.Error())
			tracing.RecordError(ctx, err)
			return
		}
		s.logger.InfoContext(ctx, "re-authenticated after unauthorized response")
	}
}

// observe writes the run to history and metrics. Failures are logged only.
func (s *Service) observe(ctx context.Context, record *run.Record) {
	if s.history != nil {
		if err := s.history.SaveRun(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to record run history", "error", err.Error())
		}
	}
	if s.metrics != nil {
		if err := s.metrics.ObserveRun(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to write run metrics", "error", err.Error())
		}
	}
}

// fatal wraps err with a code that aborts the run.
func fatal(code domainErrors.ErrorCode, msg string, err error) error {
	return domainErrors.NewError(code, msg, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
