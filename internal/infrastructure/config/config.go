// Package config provides configuration structs and utilities for the activitysync application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the root configuration for the activitysync application.
type Config struct {
	Source        SourceConfig        `yaml:"source"`
	Destination   DestinationConfig   `yaml:"destination"`
	Sync          SyncConfig          `yaml:"sync"`
	Retry         RetryConfig         `yaml:"retry"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	History       HistoryConfig       `yaml:"history"`
}

// SourceConfig holds configuration for the iGPSport source platform.
type SourceConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password,omitempty"` // Prefer IGPSPORT_PASSWORD
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
	Timezone string        `yaml:"timezone"` // Zone for start times reported without an offset; empty means Local
}

// DestinationConfig holds configuration for the Garmin Connect destination platform.
type DestinationConfig struct {
	Domain     string        `yaml:"domain"`             // garmin.com or garmin.cn
	BaseURL    string        `yaml:"base_url,omitempty"` // Overrides https://connectapi.<domain>
	TokenURL   string        `yaml:"token_url,omitempty"`
	ClientID   string        `yaml:"client_id"`
	Email      string        `yaml:"email"`
	Password   string        `yaml:"password,omitempty"` // Prefer GARMIN_PASSWORD
	SessionDir string        `yaml:"session_dir"`
	PageSize   int           `yaml:"page_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SyncConfig holds configuration for the sync window and pacing.
type SyncConfig struct {
	Tolerance           time.Duration `yaml:"tolerance"`
	DefaultLookback     time.Duration `yaml:"default_lookback"`
	PauseBetweenUploads time.Duration `yaml:"pause_between_uploads"`
	State               StateConfig   `yaml:"state"`
}

// StateConfig selects where the sync watermark is persisted.
type StateConfig struct {
	Backend string   `yaml:"backend"` // file, s3
	Path    string   `yaml:"path"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds configuration for the S3 state backend.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Key          string `yaml:"key"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"` // For S3-compatible stores
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// RetryConfig holds the retry policy applied to every platform call.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds configuration for the textfile metrics export.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"` // node_exporter textfile collector target
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// HistoryConfig holds configuration for the run history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default configuration values.
const (
	DefaultSourceBaseURL = "https://prod.zh.igpsport.com/service"
	DefaultGarminDomain  = "garmin.com"
	DefaultGarminClient  = "activitysync"
	DefaultPageSize      = 20
	DefaultTimeout       = 30 * time.Second
	DefaultSessionDir    = "~/.activitysync/garmin"
	DefaultTimezone      = "Local"

	DefaultTolerance           = 5 * time.Minute
	DefaultLookback            = 30 * 24 * time.Hour
	DefaultPauseBetweenUploads = 2 * time.Second
	DefaultStateBackend        = "file"
	DefaultStatePath           = "~/.activitysync/last_sync_date.json"
	DefaultS3Key               = "activitysync/last_sync_date.json"

	DefaultRetryMaxAttempts = 4
	DefaultRetryBaseDelay   = 5 * time.Second
	DefaultRetryMultiplier  = 2.0
	DefaultRetryMaxDelay    = time.Minute
	DefaultRetryJitter      = 0.2

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMetricsEnabled      = false
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "activitysync"

	DefaultHistoryEnabled = true
	DefaultHistoryPath    = "~/.activitysync/history.db"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// Valid state backends.
var validStateBackends = map[string]bool{
	"file": true,
	"s3":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:  DefaultSourceBaseURL,
			PageSize: DefaultPageSize,
			Timeout:  DefaultTimeout,
			Timezone: DefaultTimezone,
		},
		Destination: DestinationConfig{
			Domain:     DefaultGarminDomain,
			ClientID:   DefaultGarminClient,
			SessionDir: DefaultSessionDir,
			PageSize:   DefaultPageSize,
			Timeout:    DefaultTimeout,
		},
		Sync: SyncConfig{
			Tolerance:           DefaultTolerance,
			DefaultLookback:     DefaultLookback,
			PauseBetweenUploads: DefaultPauseBetweenUploads,
			State: StateConfig{
				Backend: DefaultStateBackend,
				Path:    DefaultStatePath,
				S3: S3Config{
					Key: DefaultS3Key,
				},
			},
		},
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			Multiplier:  DefaultRetryMultiplier,
			MaxDelay:    DefaultRetryMaxDelay,
			Jitter:      DefaultRetryJitter,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
			},
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
		History: HistoryConfig{
			Enabled: DefaultHistoryEnabled,
			Path:    DefaultHistoryPath,
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
// Credentials are checked separately by ValidateCredentials so that read-only
// commands work without them.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Source.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}

	if err := c.Destination.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("destination: %w", err))
	}

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}

	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if err := c.History.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateCredentials checks that both platforms have a username and password.
func (c *Config) ValidateCredentials() error {
	var errs []error

	if c.Source.Username == "" {
		errs = append(errs, errors.New("IGPSPORT_USERNAME is not set"))
	}
	if c.Source.Password == "" {
		errs = append(errs, errors.New("IGPSPORT_PASSWORD is not set"))
	}
	if c.Destination.Email == "" {
		errs = append(errs, errors.New("GARMIN_EMAIL is not set"))
	}
	if c.Destination.Password == "" {
		errs = append(errs, errors.New("GARMIN_PASSWORD is not set"))
	}

	return errors.Join(errs...)
}

// Validate checks if the SourceConfig is valid.
func (s *SourceConfig) Validate() error {
	var errs []error

	if err := validateHTTPURL("base_url", s.BaseURL, true); err != nil {
		errs = append(errs, err)
	}
	if s.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if s.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone %q", s.Timezone))
		}
	}

	return errors.Join(errs...)
}

// Validate checks if the DestinationConfig is valid.
func (d *DestinationConfig) Validate() error {
	var errs []error

	if d.Domain == "" {
		errs = append(errs, errors.New("domain is required"))
	}
	if err := validateHTTPURL("base_url", d.BaseURL, false); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("token_url", d.TokenURL, false); err != nil {
		errs = append(errs, err)
	}
	if d.SessionDir == "" {
		errs = append(errs, errors.New("session_dir is required"))
	}
	if d.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if d.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// APIBaseURL returns the Garmin Connect API root for the configured domain.
func (d *DestinationConfig) APIBaseURL() string {
	if d.BaseURL != "" {
		return d.BaseURL
	}
	return "https://connectapi." + d.Domain
}

// OAuthTokenURL returns the OAuth2 token endpoint for the configured domain.
func (d *DestinationConfig) OAuthTokenURL() string {
	if d.TokenURL != "" {
		return d.TokenURL
	}
	return d.APIBaseURL() + "/oauth-service/oauth/token"
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.Tolerance < 0 {
		errs = append(errs, errors.New("tolerance must be non-negative"))
	}
	if s.DefaultLookback <= 0 {
		errs = append(errs, errors.New("default_lookback must be positive"))
	}
	if s.PauseBetweenUploads < 0 {
		errs = append(errs, errors.New("pause_between_uploads must be non-negative"))
	}
	if err := s.State.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("state: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks if the StateConfig is valid.
func (s *StateConfig) Validate() error {
	var errs []error

	if !validStateBackends[s.Backend] {
		errs = append(errs, fmt.Errorf("invalid backend %q: must be one of file, s3", s.Backend))
	}
	switch s.Backend {
	case "file":
		if s.Path == "" {
			errs = append(errs, errors.New("path is required for the file backend"))
		}
	case "s3":
		if s.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket is required for the s3 backend"))
		}
		if s.S3.Key == "" {
			errs = append(errs, errors.New("s3.key is required for the s3 backend"))
		}
		if err := validateHTTPURL("s3.endpoint", s.S3.Endpoint, false); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks if the RetryConfig is valid.
func (r *RetryConfig) Validate() error {
	var errs []error

	if r.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be at least 1"))
	}
	if r.BaseDelay < 0 {
		errs = append(errs, errors.New("base_delay must be non-negative"))
	}
	if r.Multiplier < 1 {
		errs = append(errs, errors.New("multiplier must be at least 1"))
	}
	if r.MaxDelay < 0 {
		errs = append(errs, errors.New("max_delay must be non-negative"))
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		errs = append(errs, errors.New("jitter must be in [0, 1)"))
	}

	return errors.Join(errs...)
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	var errs []error

	if err := o.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}

	if err := o.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the MetricsConfig is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.TextfilePath == "" {
		return errors.New("textfile_path is required when metrics is enabled")
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the HistoryConfig is valid.
func (h *HistoryConfig) Validate() error {
	if h.Enabled && h.Path == "" {
		return errors.New("path is required when history is enabled")
	}
	return nil
}

func validateHTTPURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	return nil
}
