// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/jbctechsolutions/activitysync/internal/adapters/history/sqlite"
	"github.com/jbctechsolutions/activitysync/internal/adapters/platform/garmin"
	"github.com/jbctechsolutions/activitysync/internal/adapters/platform/igpsport"
	filestate "github.com/jbctechsolutions/activitysync/internal/adapters/state/file"
	s3state "github.com/jbctechsolutions/activitysync/internal/adapters/state/s3"
	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/application/retry"
	appsync "github.com/jbctechsolutions/activitysync/internal/application/sync"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/config"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Force debug logging when true

	// Run history database
	dbConn  *sqlite.Connection
	history ports.RunHistoryStore

	// Persistence
	state ports.StateStore

	// Observability
	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics ports.RunMetrics
}

// NewContainer creates a new dependency injection container. Platform
// clients are created on demand by SyncService so that read-only commands
// work without credentials.
func NewContainer(ctx context.Context, cfg *config.Config, verbose bool) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}

	if err := c.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initState(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	if err := c.initHistory(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	return c, nil
}

// initObservability initializes logging, tracing and metrics.
func (c *Container) initObservability(ctx context.Context) error {
	logLevel := logging.LevelInfo
	if c.verbose {
		logLevel = logging.LevelDebug
	} else {
		switch c.config.Logging.Level {
		case "debug":
			logLevel = logging.LevelDebug
		case "warn":
			logLevel = logging.LevelWarn
		case "error":
			logLevel = logging.LevelError
		}
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	c.logger = logging.New(logging.Config{
		Level:      logLevel,
		Format:     logFormat,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})

	if c.config.Observability.Tracing.Enabled {
		tracer, err := tracing.New(ctx, tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
			Output:       os.Stderr,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	if c.config.Observability.Metrics.Enabled {
		path, err := config.ExpandPath(c.config.Observability.Metrics.TextfilePath)
		if err != nil {
			return err
		}
		c.metrics = metrics.NewTextfileExporter(path)
	}

	return nil
}

// initState selects the state backend.
func (c *Container) initState(ctx context.Context) error {
	st := c.config.Sync.State

	switch st.Backend {
	case "", "file":
		path, err := config.ExpandPath(st.Path)
		if err != nil {
			return err
		}
		c.state = filestate.NewOS(path)
	case "s3":
		store, err := s3state.NewFromConfig(ctx, s3state.Options{
			Bucket:       st.S3.Bucket,
			Key:          st.S3.Key,
			Region:       st.S3.Region,
			Endpoint:     st.S3.Endpoint,
			UsePathStyle: st.S3.UsePathStyle,
		})
		if err != nil {
			return err
		}
		c.state = store
	default:
		return fmt.Errorf("unknown state backend %q", st.Backend)
	}

	return nil
}

// initHistory opens the run history database when enabled.
func (c *Container) initHistory() error {
	if !c.config.History.Enabled {
		return nil
	}

	path, err := config.ExpandPath(c.config.History.Path)
	if err != nil {
		return err
	}

	conn, err := sqlite.NewConnection(path)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := conn.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db, err := conn.DB()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	c.dbConn = conn
	c.history = sqlite.NewRunRepository(db)
	return nil
}

// SyncService builds the platform clients and the sync service. It fails
// with a configuration error when credentials are missing.
func (c *Container) SyncService(dryRun bool) (*appsync.Service, error) {
	if err := c.config.ValidateCredentials(); err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "missing credentials", err)
	}

	source, err := c.newSource()
	if err != nil {
		return nil, err
	}
	destination, err := c.newDestination()
	if err != nil {
		return nil, err
	}

	rc := c.config.Retry
	opts := appsync.Options{
		Tolerance:           c.config.Sync.Tolerance,
		DefaultLookback:     c.config.Sync.DefaultLookback,
		PauseBetweenUploads: c.config.Sync.PauseBetweenUploads,
		Retry: retry.Policy{
			MaxAttempts: rc.MaxAttempts,
			BaseDelay:   rc.BaseDelay,
			Multiplier:  rc.Multiplier,
			MaxDelay:    rc.MaxDelay,
			Jitter:      rc.Jitter,
		},
		DryRun: dryRun,
	}

	return appsync.NewService(appsync.ServiceConfig{
		Source:      source,
		Destination: destination,
		State:       c.state,
		History:     c.history,
		Metrics:     c.metrics,
		Logger:      c.logger,
		Tracer:      c.tracer,
		Options:     opts,
	})
}

func (c *Container) newSource() (*igpsport.Client, error) {
	sc := c.config.Source

	loc := time.Local
	if sc.Timezone != "" {
		l, err := time.LoadLocation(sc.Timezone)
		if err != nil {
			return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "invalid source timezone", err)
		}
		loc = l
	}

	return igpsport.NewClient(sc.Username, sc.Password,
		igpsport.WithHTTPClient(&http.Client{Timeout: sc.Timeout}),
		igpsport.WithBaseURL(sc.BaseURL),
		igpsport.WithPageSize(sc.PageSize),
		igpsport.WithLocation(loc),
		igpsport.WithLogger(c.logger),
	), nil
}

func (c *Container) newDestination() (*garmin.Client, error) {
	dc := c.config.Destination

	opts := []garmin.Option{
		garmin.WithHTTPClient(&http.Client{Timeout: dc.Timeout}),
		garmin.WithBaseURL(dc.APIBaseURL()),
		garmin.WithTokenURL(dc.OAuthTokenURL()),
		garmin.WithClientID(dc.ClientID),
		garmin.WithPageSize(dc.PageSize),
		garmin.WithLogger(c.logger),
	}

	if dc.SessionDir != "" {
		dir, err := config.ExpandPath(dc.SessionDir)
		if err != nil {
			return nil, err
		}
		fs := osfs.New(dir)
		enc, err := crypto.NewSecretEncryptor(fs, dc.Email+"\x00"+dc.Password)
		if err != nil {
			return nil, domainErrors.NewError(domainErrors.CodeConfiguration, "failed to prepare session cache", err)
		}
		opts = append(opts, garmin.WithSessionCache(garmin.NewSessionCache(fs, enc)))
	}

	return garmin.NewClient(dc.Email, dc.Password, opts...), nil
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
	}

	if c.dbConn != nil {
		return c.dbConn.Close()
	}
	return nil
}

// StateStore returns the configured state backend.
func (c *Container) StateStore() ports.StateStore {
	return c.state
}

// History returns the run history store, or nil when history is disabled.
func (c *Container) History() ports.RunHistoryStore {
	return c.history
}
