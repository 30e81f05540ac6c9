package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Host != "0.0.0.0" {
		t.Errorf("default host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Port != 8000 {
		t.Errorf("default port = %d, want 8000", cfg.Port)
	}
	if cfg.Workers != 4 {
		t.Errorf("default workers = %d, want 4", cfg.Workers)
	}
	if cfg.DrainTimeout != 10*time.Second {
		t.Errorf("default drain timeout = %s, want 10s", cfg.DrainTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PREFORK_HOST", "127.0.0.1")
	t.Setenv("PREFORK_PORT", "9000")
	t.Setenv("PREFORK_WORKERS", "8")
	t.Setenv("PREFORK_APP", "myapp")
	t.Setenv("PREFORK_DRAIN_TIMEOUT", "3s")

	cfg := FromEnv()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Workers)
	}
	if cfg.App != "myapp" {
		t.Errorf("app = %q, want myapp", cfg.App)
	}
	if cfg.DrainTimeout != 3*time.Second {
		t.Errorf("drain timeout = %s, want 3s", cfg.DrainTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"empty app", func(c *Config) { c.App = "" }, true},
		{"negative drain timeout", func(c *Config) { c.DrainTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 8123
	if got := cfg.Addr(); got != "127.0.0.1:8123" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8123", got)
	}
}

func TestLoadFileApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefork.yaml")
	data := []byte(`
port: 9100
workers: 2
app: custom
drain_timeout_secs: 5
backoff_initial_millis: 100
crash_threshold: 3
crash_window_secs: 20
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	cfg := Default()
	fc.Apply(&cfg)

	if cfg.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Port)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Workers)
	}
	if cfg.App != "custom" {
		t.Errorf("app = %q, want custom", cfg.App)
	}
	if cfg.DrainTimeout != 5*time.Second {
		t.Errorf("drain timeout = %s, want 5s", cfg.DrainTimeout)
	}
	if cfg.BackoffInitial != 100*time.Millisecond {
		t.Errorf("backoff initial = %s, want 100ms", cfg.BackoffInitial)
	}
	if cfg.CrashThreshold != 3 {
		t.Errorf("crash threshold = %d, want 3", cfg.CrashThreshold)
	}
	if cfg.CrashWindow != 20*time.Second {
		t.Errorf("crash window = %s, want 20s", cfg.CrashWindow)
	}
	// Untouched fields keep their defaults.
	if cfg.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default 0.0.0.0", cfg.Host)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
