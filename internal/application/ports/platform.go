// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the sync core to interact with fitness platforms and
// persistence without knowing their implementation details.
package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
)

// SourcePlatform is the platform activities are copied from.
type SourcePlatform interface {
	// Name returns a short identifier used in logs and spans.
	Name() string

	// Login establishes a session. It must be called before any other method.
	Login(ctx context.Context) error

	// ListActivities returns activities whose start time is after since.
	// Ordering is not guaranteed; callers sort.
	ListActivities(ctx context.Context, since time.Time) ([]activity.Activity, error)

	// DownloadFile returns the original recording file for the activity.
	DownloadFile(ctx context.Context, activityID string) ([]byte, error)
}

// UploadResult describes the destination's response to an upload.
type UploadResult struct {
	UploadID  string // Destination-assigned upload or activity ID, if reported
	Duplicate bool   // Destination already held this recording
}

// DestinationPlatform is the platform activities are copied to.
type DestinationPlatform interface {
	// Name returns a short identifier used in logs and spans.
	Name() string

	// Login establishes a session, reusing a cached one when still valid.
	Login(ctx context.Context) error

	// ListActivities returns activities starting within [from, to].
	ListActivities(ctx context.Context, from, to time.Time) ([]activity.Activity, error)

	// UploadFile submits a recording file. name is used as the upload file name.
	UploadFile(ctx context.Context, name string, data []byte) (UploadResult, error)
}
