package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/application/retry"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/logging"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type harness struct {
	source  *fakeSource
	dest    *fakeDestination
	state   *memState
	history *memHistory
	metrics *memMetrics
	now     time.Time
	pauses  []time.Duration
	opts    Options
}

func newHarness(now time.Time) *harness {
	src := &fakeSource{}
	opts := DefaultOptions()
	opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1}
	return &harness{
		source:  src,
		dest:    &fakeDestination{source: src},
		state:   &memState{},
		history: &memHistory{},
		metrics: &memMetrics{},
		now:     now,
		opts:    opts,
	}
}

func (h *harness) service(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Source:      h.source,
		Destination: h.dest,
		State:       h.state,
		History:     h.history,
		Metrics:     h.metrics,
		Logger:      logging.Discard(),
		Options:     h.opts,
		Now:         func() time.Time { return h.now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.pauses = append(h.pauses, d)
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func (h *harness) setState(t time.Time) {
	s := syncstate.State{LastSyncDate: t}
	h.state.state = &s
}

func outcomes(r *run.Record) map[string]run.Outcome {
	out := make(map[string]run.Outcome)
	for _, t := range r.Transfers {
		out[t.ActivityID] = t.Outcome
	}
	return out
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceConfig{Options: DefaultOptions()}); err == nil {
		t.Error("expected error without collaborators")
	}

	h := newHarness(at(12, 0))
	h.opts.Retry.MaxAttempts = 0
	_, err := NewService(ServiceConfig{Source: h.source, Destination: h.dest, State: h.state, Options: h.opts})
	if domainErrors.CodeOf(err) != domainErrors.CodeConfiguration {
		t.Errorf("expected configuration error for invalid retry policy, got %v", err)
	}
}

func TestExecute_ExcludesActivityWithinTolerance(t *testing.T) {
	h := newHarness(at(23, 0))
	h.source.activities = []activity.Activity{ride("s1000", at(10, 0)), ride("s1030", at(10, 30))}
	h.dest.activities = []activity.Activity{garminRide("g1002", at(10, 2))}

	report, err := h.service(t).Execute(context.Background(), syncstate.State{LastSyncDate: at(0, 0)}, h.now)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(h.dest.uploads) != 1 || h.dest.uploads[0] != "s1030.fit" {
		t.Errorf("uploads = %v, want [s1030.fit]", h.dest.uploads)
	}
	got := outcomes(report.Record)
	if got["s1000"] != run.OutcomeDuplicate || got["s1030"] != run.OutcomeTransferred {
		t.Errorf("outcomes = %v", got)
	}
	if len(report.Duplicates) != 1 || report.Duplicates[0].Gap != 2*time.Minute {
		t.Errorf("duplicates = %+v", report.Duplicates)
	}
	if report.Record.Candidates != 2 || report.Record.Duplicates != 1 || report.Record.Transferred != 1 {
		t.Errorf("counts = %+v", report.Record)
	}
	if !report.State.LastSyncDate.Equal(h.now) {
		t.Errorf("state = %v, want %v", report.State.LastSyncDate, h.now)
	}
}

func TestExecute_TransfersOldestFirst(t *testing.T) {
	h := newHarness(at(23, 0))
	h.source.activities = []activity.Activity{ride("c", at(18, 0)), ride("a", at(6, 0)), ride("b", at(12, 0))}

	if _, err := h.service(t).Execute(context.Background(), syncstate.State{LastSyncDate: at(0, 0)}, h.now); err != nil {
		t.Fatal(err)
	}

	want := []string{"a.fit", "b.fit", "c.fit"}
	for i, name := range want {
		if i >= len(h.dest.uploads) || h.dest.uploads[i] != name {
			t.Fatalf("uploads = %v, want %v", h.dest.uploads, want)
		}
	}
	if len(h.pauses) != 2 || h.pauses[0] != h.opts.PauseBetweenUploads {
		t.Errorf("pauses = %v, want two of %v", h.pauses, h.opts.PauseBetweenUploads)
	}
}

func TestRun_AbsentStateUsesDefaultLookback(t *testing.T) {
	now := at(12, 0)
	h := newHarness(now)

	report, err := h.service(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantSince := now.Add(-30 * 24 * time.Hour)
	if len(h.source.listedSince) != 1 || !h.source.listedSince[0].Equal(wantSince) {
		t.Errorf("source listed since %v, want %v", h.source.listedSince, wantSince)
	}
	if w := h.dest.windows[0]; !w.From.Equal(wantSince.Add(-5*time.Minute)) || !w.To.Equal(now.Add(5*time.Minute)) {
		t.Errorf("destination window = %+v", w)
	}
	if !report.Record.Since.Equal(wantSince) {
		t.Errorf("record since = %v", report.Record.Since)
	}
	if h.state.saves != 1 || !h.state.state.LastSyncDate.Equal(now) {
		t.Errorf("saved state = %+v after %d saves", h.state.state, h.state.saves)
	}
}

func TestRun_CorruptStateUsesDefaultLookback(t *testing.T) {
	now := at(12, 0)
	h := newHarness(now)
	h.state.loadErr = domainErrors.ErrStateCorrupt

	if _, err := h.service(t).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !h.source.listedSince[0].Equal(now.Add(-30 * 24 * time.Hour)) {
		t.Errorf("source listed since %v", h.source.listedSince[0])
	}
}

func TestRun_StateReadFailureIsFatal(t *testing.T) {
	h := newHarness(at(12, 0))
	h.state.loadErr = errors.New("access denied")

	report, err := h.service(t).Run(context.Background())
	if domainErrors.CodeOf(err) != domainErrors.CodeState {
		t.Fatalf("expected state error, got %v", err)
	}
	if h.source.logins != 0 {
		t.Error("no platform calls expected")
	}
	if !report.Failed() || len(h.history.records) != 1 {
		t.Errorf("failed run should be recorded: %+v", report.Record)
	}
}

func TestRun_SourceLoginFailureLeavesState(t *testing.T) {
	t0 := at(6, 0)
	h := newHarness(at(12, 0))
	h.setState(t0)
	h.source.loginErr = errRejected
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}

	report, err := h.service(t).Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !domainErrors.IsFatal(err) || domainErrors.CodeOf(err) != domainErrors.CodeAuth {
		t.Errorf("expected fatal auth error, got %v", err)
	}
	if !errors.Is(err, domainErrors.ErrLoginRejected) {
		t.Errorf("cause should be kept: %v", err)
	}
	if h.source.logins != 1 {
		t.Errorf("rejected login should not be retried, got %d attempts", h.source.logins)
	}
	if h.dest.logins != 0 || len(h.dest.uploads) != 0 {
		t.Error("destination must not be touched")
	}
	if h.state.saves != 0 || !h.state.state.LastSyncDate.Equal(t0) {
		t.Errorf("state changed to %v", h.state.state.LastSyncDate)
	}
	if report.Record.Status != run.StatusFailed || report.Record.Phase != run.PhaseInit {
		t.Errorf("record = %s/%s", report.Record.Status, report.Record.Phase)
	}
	if len(h.history.records) != 1 || len(h.metrics.observed) != 1 {
		t.Error("failed run should reach history and metrics")
	}
}

func TestRun_DestinationLoginFailureIsFatal(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.dest.loginErr = errRejected

	_, err := h.service(t).Run(context.Background())
	if domainErrors.CodeOf(err) != domainErrors.CodeAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if h.state.saves != 0 {
		t.Error("state must not be saved")
	}
}

func TestRun_TransientLoginFailureIsRetried(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.source.loginErr = errTransient

	if _, err := h.service(t).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.source.logins != h.opts.Retry.MaxAttempts {
		t.Errorf("logins = %d, want %d", h.source.logins, h.opts.Retry.MaxAttempts)
	}
}

func TestRun_ListingFailureIsFatal(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.source.listErr = errTransient

	_, err := h.service(t).Run(context.Background())
	if domainErrors.CodeOf(err) != domainErrors.CodeListing || !domainErrors.IsFatal(err) {
		t.Fatalf("expected fatal listing error, got %v", err)
	}
	if len(h.source.listedSince) != h.opts.Retry.MaxAttempts {
		t.Errorf("list attempts = %d, want %d", len(h.source.listedSince), h.opts.Retry.MaxAttempts)
	}
	if h.state.saves != 0 {
		t.Error("state must not be saved")
	}

	h2 := newHarness(at(12, 0))
	h2.dest.listErr = errBadRequest
	if _, err := h2.service(t).Run(context.Background()); domainErrors.CodeOf(err) != domainErrors.CodeListing {
		t.Errorf("destination listing failure: got %v", err)
	}
}

func TestRun_IdempotentSecondRun(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0)), ride("b", at(9, 0))}
	svc := h.service(t)

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := h.state.state.LastSyncDate

	h.now = at(13, 0)
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.dest.uploads) != 2 || report.Record.Transferred != 0 {
		t.Errorf("second run transferred %d, uploads = %v", report.Record.Transferred, h.dest.uploads)
	}
	if h.state.state.LastSyncDate.Before(first) {
		t.Errorf("watermark moved backwards: %v < %v", h.state.state.LastSyncDate, first)
	}
}

func TestExecute_RepeatedFromSameStateFindsDuplicates(t *testing.T) {
	h := newHarness(at(12, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}
	svc := h.service(t)
	state := syncstate.State{LastSyncDate: at(6, 0)}

	if _, err := svc.Execute(context.Background(), state, h.now); err != nil {
		t.Fatal(err)
	}
	report, err := svc.Execute(context.Background(), state, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.dest.uploads) != 1 || report.Record.Duplicates != 1 {
		t.Errorf("uploads = %v, duplicates = %d", h.dest.uploads, report.Record.Duplicates)
	}
}

func TestRun_EmptyWindowAdvancesState(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))

	report, err := h.service(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Record.Candidates != 0 {
		t.Errorf("candidates = %d", report.Record.Candidates)
	}
	if !h.state.state.LastSyncDate.Equal(at(12, 0)) {
		t.Errorf("state = %v, want run start", h.state.state.LastSyncDate)
	}
	if report.Record.Status != run.StatusCompleted || !report.Record.Watermark.Equal(at(12, 0)) {
		t.Errorf("record = %+v", report.Record)
	}
}

func TestRun_RetryThenSkipDoesNotBlockProgress(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0)), ride("b", at(9, 0))}
	h.dest.uploadErr = func(name string, n int) error {
		if name == "a.fit" {
			return errTransient
		}
		return nil
	}
	svc := h.service(t)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("skipped transfers must not fail the run: %v", err)
	}
	if h.dest.tries["a.fit"] != h.opts.Retry.MaxAttempts {
		t.Errorf("upload attempts for a = %d, want %d", h.dest.tries["a.fit"], h.opts.Retry.MaxAttempts)
	}
	got := outcomes(report.Record)
	if got["a"] != run.OutcomeSkipped || got["b"] != run.OutcomeTransferred {
		t.Errorf("outcomes = %v", got)
	}
	if report.Record.Status != run.StatusCompleted {
		t.Errorf("status = %s", report.Record.Status)
	}
	saved := h.state.state
	if !saved.LastSyncDate.Equal(at(12, 0)) {
		t.Errorf("watermark = %v, want run start", saved.LastSyncDate)
	}
	if !saved.IsPending("a") || saved.IsPending("b") {
		t.Errorf("pending = %+v, want [a]", saved.Pending)
	}

	// Next run: a is offered again and now succeeds.
	h.dest.uploadErr = nil
	h.now = at(14, 0)
	report, err = svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Record.Candidates != 1 || outcomes(report.Record)["a"] != run.OutcomeTransferred {
		t.Errorf("second run should retry a: %+v", report.Record.Transfers)
	}
	if len(h.state.state.Pending) != 0 {
		t.Errorf("pending = %+v, want empty", h.state.state.Pending)
	}
}

func TestRun_PendingActivityGoneFromSourceIsDropped(t *testing.T) {
	h := newHarness(at(12, 0))
	s := syncstate.State{
		LastSyncDate: at(6, 0),
		Pending:      []syncstate.Pending{{ID: "deleted", StartTime: at(3, 0)}},
	}
	h.state.state = &s

	if _, err := h.service(t).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.source.listedSince[0].Before(at(3, 0)) {
		t.Errorf("listing should reach back to the pending activity, since = %v", h.source.listedSince[0])
	}
	if len(h.state.state.Pending) != 0 {
		t.Errorf("pending = %+v, want empty", h.state.state.Pending)
	}
}

func TestExecute_PermanentDownloadErrorIsNotRetried(t *testing.T) {
	h := newHarness(at(12, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}
	h.source.downloadErr = func(string, int) error { return errBadRequest }

	report, err := h.service(t).Execute(context.Background(), syncstate.State{LastSyncDate: at(6, 0)}, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if h.source.downloads["a"] != 1 {
		t.Errorf("downloads = %d, want 1", h.source.downloads["a"])
	}
	tr := report.Record.Transfers[0]
	if tr.Outcome != run.OutcomeSkipped || tr.Attempts != 1 || tr.ErrorMessage == "" {
		t.Errorf("transfer = %+v", tr)
	}
	if len(h.dest.uploads) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestExecute_ReauthenticatesOnUnauthorized(t *testing.T) {
	h := newHarness(at(12, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}
	h.dest.uploadErr = func(name string, n int) error {
		if n == 1 {
			return errUnauthorized
		}
		return nil
	}

	report, err := h.service(t).Execute(context.Background(), syncstate.State{LastSyncDate: at(6, 0)}, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if h.dest.logins != 2 {
		t.Errorf("destination logins = %d, want 2", h.dest.logins)
	}
	tr := report.Record.Transfers[0]
	if tr.Outcome != run.OutcomeTransferred || tr.Attempts != 3 {
		t.Errorf("transfer = %+v, want transferred after 1 download + 2 uploads", tr)
	}
}

func TestExecute_DuplicateUploadCountsAsTransferred(t *testing.T) {
	h := newHarness(at(12, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}
	h.dest.duplicate = map[string]bool{"a.fit": true}

	report, err := h.service(t).Execute(context.Background(), syncstate.State{LastSyncDate: at(6, 0)}, h.now)
	if err != nil {
		t.Fatal(err)
	}
	if outcomes(report.Record)["a"] != run.OutcomeAlreadyPresent || report.Record.Transferred != 1 {
		t.Errorf("record = %+v", report.Record)
	}
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.opts.DryRun = true
	h.source.activities = []activity.Activity{ride("a", at(8, 0)), ride("b", at(9, 0))}
	h.dest.activities = []activity.Activity{garminRide("g", at(9, 1))}

	report, err := h.service(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.dest.uploads) != 0 || len(h.source.downloads) != 0 {
		t.Error("dry run must not transfer")
	}
	if h.state.saves != 0 {
		t.Error("dry run must not persist state")
	}
	if len(report.Planned) != 1 || report.Planned[0].ID != "a" {
		t.Errorf("planned = %v", report.Planned)
	}
	if report.Record.Status != run.StatusDryRun || outcomes(report.Record)["a"] != run.OutcomePlanned {
		t.Errorf("record = %+v", report.Record)
	}
	if !report.State.LastSyncDate.Equal(at(6, 0)) {
		t.Errorf("report state = %v, want unchanged", report.State.LastSyncDate)
	}
	if report.Record.SinceDefaulted {
		t.Error("since came from persisted state")
	}
}

func TestRun_DryRunWithoutState(t *testing.T) {
	h := newHarness(at(12, 0))
	h.opts.DryRun = true
	h.source.activities = []activity.Activity{ride("a", at(8, 0))}

	report, err := h.service(t).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Record.SinceDefaulted || !report.Record.Watermark.IsZero() {
		t.Errorf("record = %+v, want defaulted since and no watermark", report.Record)
	}
	if len(h.metrics.observed) != 1 || !h.metrics.observed[0].SinceDefaulted {
		t.Error("metrics should see the defaulted since")
	}
}

func TestRun_StateSaveFailureIsFatal(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.state.saveErr = errors.New("disk full")

	report, err := h.service(t).Run(context.Background())
	if domainErrors.CodeOf(err) != domainErrors.CodeState || !domainErrors.IsFatal(err) {
		t.Fatalf("expected fatal state error, got %v", err)
	}
	if !report.Failed() || !report.Record.Watermark.IsZero() {
		t.Errorf("record = %+v", report.Record)
	}
	if h.history.records[0].Status != run.StatusFailed {
		t.Error("history should record the failure")
	}
}

func TestRun_CancellationStopsTransfers(t *testing.T) {
	h := newHarness(at(12, 0))
	h.setState(at(6, 0))
	h.source.activities = []activity.Activity{ride("a", at(8, 0)), ride("b", at(9, 0))}

	ctx, cancel := context.WithCancel(context.Background())
	svc := h.service(t)
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := svc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.dest.uploads) != 1 {
		t.Errorf("uploads = %v, want only the first", h.dest.uploads)
	}
	if h.state.saves != 0 {
		t.Error("cancelled run must not persist state")
	}
}

func TestUploadName(t *testing.T) {
	if got := UploadName(ride("1234", at(8, 0))); got != "1234.fit" {
		t.Errorf("UploadName() = %q", got)
	}
}
