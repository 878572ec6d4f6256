package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoader_Load_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvGarminDomain, "")
	t.Setenv(EnvStateFile, "")

	loader, err := NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Tolerance != DefaultTolerance {
		t.Errorf("expected default tolerance, got %v", cfg.Sync.Tolerance)
	}
}

func TestLoader_Load_ParsesYAML(t *testing.T) {
	t.Setenv(EnvStateFile, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
sync:
  tolerance: 10m
  pause_between_uploads: 0s
  state:
    backend: s3
    s3:
      bucket: rides
retry:
  max_attempts: 6
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	loader, _ := NewLoader(dir)
	cfg, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Tolerance != 10*time.Minute {
		t.Errorf("tolerance = %v, want 10m", cfg.Sync.Tolerance)
	}
	if cfg.Sync.PauseBetweenUploads != 0 {
		t.Errorf("pause = %v, want 0", cfg.Sync.PauseBetweenUploads)
	}
	if cfg.Sync.State.Backend != "s3" || cfg.Sync.State.S3.Bucket != "rides" {
		t.Errorf("state = %+v", cfg.Sync.State)
	}
	// Unset keys keep their defaults
	if cfg.Sync.State.S3.Key != DefaultS3Key {
		t.Errorf("s3 key = %q, want default", cfg.Sync.State.S3.Key)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("max_attempts = %d, want 6", cfg.Retry.MaxAttempts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoader_Load_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("sync: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	loader, _ := NewLoader(dir)
	if _, err := loader.Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoader_Load_UnreadablePath(t *testing.T) {
	dir := t.TempDir()
	loader, _ := NewLoader(dir)

	// A directory where the file should be is a read error, not a missing file.
	if _, err := loader.Load(dir); err == nil {
		t.Error("expected error when the config path is a directory")
	}
}

func TestLoader_Load_AppliesEnv(t *testing.T) {
	t.Setenv(EnvSourceUsername, "rider")
	t.Setenv(EnvSourcePassword, "pw1")
	t.Setenv(EnvGarminEmail, "rider@example.com")
	t.Setenv(EnvGarminPassword, "pw2")
	t.Setenv(EnvGarminDomain, "garmin.cn")
	t.Setenv(EnvStateFile, "/tmp/state.json")

	loader, _ := NewLoader(t.TempDir())
	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source.Username != "rider" || cfg.Source.Password != "pw1" {
		t.Errorf("source credentials not applied: %+v", cfg.Source)
	}
	if cfg.Destination.Email != "rider@example.com" || cfg.Destination.Password != "pw2" {
		t.Errorf("destination credentials not applied")
	}
	if cfg.Destination.Domain != "garmin.cn" {
		t.Errorf("domain = %q, want garmin.cn", cfg.Destination.Domain)
	}
	if cfg.Sync.State.Path != "/tmp/state.json" || cfg.Sync.State.Backend != "file" {
		t.Errorf("state = %+v", cfg.Sync.State)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("ValidateCredentials() error = %v", err)
	}
}

func TestLoader_Save_OmitsPasswords(t *testing.T) {
	for _, key := range []string{EnvSourceUsername, EnvSourcePassword, EnvGarminEmail, EnvGarminPassword, EnvGarminDomain, EnvStateFile} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	loader, _ := NewLoader(dir)

	cfg := NewDefaultConfig()
	cfg.Source.Username = "rider"
	cfg.Source.Password = "hunter2"
	cfg.Destination.Password = "hunter3"

	if err := loader.Save(cfg, ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(loader.DefaultConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter") {
		t.Error("saved config must not contain passwords")
	}
	if cfg.Source.Password != "hunter2" {
		t.Error("Save() must not mutate the caller's config")
	}

	loaded, err := loader.Load(loader.DefaultConfigPath())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Source.Username != "rider" {
		t.Errorf("username = %q, want rider", loaded.Source.Username)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.activitysync/state.json", filepath.Join(home, ".activitysync/state.json")},
		{"~", home},
		{"/var/lib/state.json", "/var/lib/state.json"},
		{"relative/state.json", "relative/state.json"},
	}

	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
