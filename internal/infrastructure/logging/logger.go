// Package logging provides structured logging infrastructure for activitysync.
// It wraps Go's standard log/slog package with context-aware logging, run IDs,
// and sync-specific log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// RunIDKey is the context key for the sync run ID.
	RunIDKey contextKey = "run_id"
	// PlatformKey is the context key for the platform being called.
	PlatformKey contextKey = "platform"
	// ActivityIDKey is the context key for the activity being transferred.
	ActivityIDKey contextKey = "activity_id"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Outcome values distinguish how a run or activity ended in log output.
const (
	OutcomeFatal   = "fatal"
	OutcomeSkipped = "skipped_retry_next_run"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with context enrichment.
type Logger struct {
	slogger *slog.Logger
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	return Init(DefaultConfig())
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{slogger: slog.New(handler)}
}

// ParseLevel converts a Level to slog.Level. Unknown levels map to info.
func ParseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+6)

	if v := ctx.Value(RunIDKey); v != nil {
		enriched = append(enriched, "run_id", v)
	}
	if v := ctx.Value(PlatformKey); v != nil {
		enriched = append(enriched, "platform", v)
	}
	if v := ctx.Value(ActivityIDKey); v != nil {
		enriched = append(enriched, "activity_id", v)
	}

	return append(enriched, args...)
}

// --- Context helpers ---

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// WithPlatform adds a platform name to the context.
func WithPlatform(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, PlatformKey, name)
}

// WithActivityID adds an activity ID to the context.
func WithActivityID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ActivityIDKey, id)
}

// --- Sync-specific logging helpers ---

// LogRunStart logs the start of a sync run.
func LogRunStart(ctx context.Context, logger *Logger, since time.Time, dryRun bool) {
	logger.InfoContext(ctx, "sync run started",
		"last_sync_date", since.Format(time.RFC3339),
		"dry_run", dryRun,
	)
}

// LogRunComplete logs the summary of a finished run.
func LogRunComplete(ctx context.Context, logger *Logger, candidates, duplicates, transferred, skipped int, duration time.Duration) {
	logger.InfoContext(ctx, "sync run completed",
		"candidates", candidates,
		"duplicates", duplicates,
		"transferred", transferred,
		"skipped", skipped,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogRunFailed logs a fatal error that aborted the run.
func LogRunFailed(ctx context.Context, logger *Logger, phase string, err error, duration time.Duration) {
	logger.ErrorContext(ctx, "sync run aborted",
		"outcome", OutcomeFatal,
		"phase", phase,
		"error", err.Error(),
		"duration_ms", duration.Milliseconds(),
	)
}

// LogDuplicate logs a candidate excluded by the overlap filter.
func LogDuplicate(ctx context.Context, logger *Logger, sourceID, destinationID string, gap time.Duration) {
	logger.InfoContext(ctx, "activity already on destination",
		"source_id", sourceID,
		"destination_id", destinationID,
		"gap_s", int64(gap.Seconds()),
	)
}

// LogTransferSkipped logs an activity that failed past the retry ceiling.
func LogTransferSkipped(ctx context.Context, logger *Logger, stage string, attempts int, err error) {
	logger.WarnContext(ctx, "activity transfer skipped",
		"outcome", OutcomeSkipped,
		"stage", stage,
		"attempts", attempts,
		"error", err.Error(),
	)
}

// LogRetry logs a failed attempt that will be retried.
func LogRetry(ctx context.Context, logger *Logger, operation string, attempt int, delay time.Duration, err error) {
	logger.WarnContext(ctx, "retrying after failure",
		"operation", operation,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", err.Error(),
	)
}
