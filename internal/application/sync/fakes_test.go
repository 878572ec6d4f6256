package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/domain/run"
	"github.com/jbctechsolutions/activitysync/internal/domain/syncstate"
)

var (
	errTransient    = domainErrors.NewError(domainErrors.CodeTransient, "HTTP 503", nil)
	errUnauthorized = domainErrors.NewError(domainErrors.CodeTransient, "HTTP 401", domainErrors.ErrUnauthorized)
	errBadRequest   = domainErrors.NewError(domainErrors.CodePermanent, "HTTP 400", nil)
	errRejected     = domainErrors.NewError(domainErrors.CodeAuth, "login rejected", domainErrors.ErrLoginRejected)
)

// fakeSource is an in-memory source platform.
type fakeSource struct {
	activities []activity.Activity
	loginErr   error
	listErr    error
	// downloadErr returns the error for the nth (1-based) download of id.
	downloadErr func(id string, n int) error

	logins      int
	listedSince []time.Time
	downloads   map[string]int
}

func (f *fakeSource) Name() string { return "source" }

func (f *fakeSource) Login(ctx context.Context) error {
	f.logins++
	return f.loginErr
}

func (f *fakeSource) ListActivities(ctx context.Context, since time.Time) ([]activity.Activity, error) {
	f.listedSince = append(f.listedSince, since)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []activity.Activity
	for _, a := range f.activities {
		if a.StartTime.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSource) DownloadFile(ctx context.Context, id string) ([]byte, error) {
	if f.downloads == nil {
		f.downloads = make(map[string]int)
	}
	f.downloads[id]++
	if f.downloadErr != nil {
		if err := f.downloadErr(id, f.downloads[id]); err != nil {
			return nil, err
		}
	}
	return []byte("FIT-" + id), nil
}

func (f *fakeSource) find(id string) activity.Activity {
	for _, a := range f.activities {
		if a.ID == id {
			return a
		}
	}
	return activity.Activity{}
}

// fakeDestination is an in-memory destination platform. Successful uploads
// become listable destination activities.
type fakeDestination struct {
	source     *fakeSource
	activities []activity.Activity
	loginErr   error
	listErr    error
	// uploadErr returns the error for the nth (1-based) upload of name.
	uploadErr func(name string, n int) error
	duplicate map[string]bool

	logins  int
	windows []activity.Window
	uploads []string
	tries   map[string]int
}

func (f *fakeDestination) Name() string { return "destination" }

func (f *fakeDestination) Login(ctx context.Context) error {
	f.logins++
	return f.loginErr
}

func (f *fakeDestination) ListActivities(ctx context.Context, from, to time.Time) ([]activity.Activity, error) {
	f.windows = append(f.windows, activity.Window{From: from, To: to})
	if f.listErr != nil {
		return nil, f.listErr
	}
	w := activity.Window{From: from, To: to}
	var out []activity.Activity
	for _, a := range f.activities {
		if w.Contains(a.StartTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeDestination) UploadFile(ctx context.Context, name string, data []byte) (ports.UploadResult, error) {
	if f.tries == nil {
		f.tries = make(map[string]int)
	}
	f.tries[name]++
	if f.uploadErr != nil {
		if err := f.uploadErr(name, f.tries[name]); err != nil {
			return ports.UploadResult{}, err
		}
	}
	f.uploads = append(f.uploads, name)

	id := name[:len(name)-len(".fit")]
	if f.source != nil {
		src := f.source.find(id)
		f.activities = append(f.activities, activity.Activity{
			ID:        "g" + id,
			StartTime: src.StartTime,
			Platform:  activity.PlatformDestination,
		})
	}
	return ports.UploadResult{UploadID: "g" + id, Duplicate: f.duplicate[name]}, nil
}

// memState is an in-memory state store.
type memState struct {
	state   *syncstate.State
	loadErr error
	saveErr error
	saves   int
}

func (m *memState) Load(ctx context.Context) (syncstate.State, error) {
	if m.loadErr != nil {
		return syncstate.State{}, m.loadErr
	}
	if m.state == nil {
		return syncstate.State{}, domainErrors.ErrStateNotFound
	}
	return *m.state, nil
}

func (m *memState) Save(ctx context.Context, s syncstate.State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = &s
	return nil
}

func (m *memState) Location() string { return "memory" }

type memHistory struct {
	records []*run.Record
}

func (m *memHistory) SaveRun(ctx context.Context, r *run.Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memHistory) ListRuns(ctx context.Context, f run.Filter) ([]run.Record, error) {
	var out []run.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		out = append(out, *m.records[i])
	}
	return out, nil
}

func (m *memHistory) GetRun(ctx context.Context, id string) (*run.Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("run %s not found", id)
}

type memMetrics struct {
	observed []*run.Record
}

func (m *memMetrics) ObserveRun(ctx context.Context, r *run.Record) error {
	m.observed = append(m.observed, r)
	return nil
}

func ride(id string, start time.Time) activity.Activity {
	return activity.New(id, start, activity.PlatformSource)
}

func garminRide(id string, start time.Time) activity.Activity {
	return activity.New(id, start, activity.PlatformDestination)
}
