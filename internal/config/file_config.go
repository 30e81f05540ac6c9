package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML policy file. Durations are plain seconds
// so the file stays readable; zero values leave the built-in policy alone.
type FileConfig struct {
	Host         string `yaml:"host,omitempty"`
	Port         int    `yaml:"port,omitempty"`
	Workers      int    `yaml:"workers,omitempty"`
	App          string `yaml:"app,omitempty"`
	AdminAddress string `yaml:"admin_address,omitempty"`

	DrainTimeoutSecs int `yaml:"drain_timeout_secs,omitempty"`
	ReadyTimeoutSecs int `yaml:"ready_timeout_secs,omitempty"`

	BackoffInitialMillis int `yaml:"backoff_initial_millis,omitempty"`
	BackoffMaxSecs       int `yaml:"backoff_max_secs,omitempty"`
	BackoffResetSecs     int `yaml:"backoff_reset_secs,omitempty"`

	CrashThreshold  int `yaml:"crash_threshold,omitempty"`
	CrashWindowSecs int `yaml:"crash_window_secs,omitempty"`
}

// LoadFile reads and parses the YAML policy file at path.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	return &fc, nil
}

// Apply overlays the file values onto cfg, skipping anything unset.
func (fc *FileConfig) Apply(cfg *Config) {
	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Workers != 0 {
		cfg.Workers = fc.Workers
	}
	if fc.App != "" {
		cfg.App = fc.App
	}
	if fc.AdminAddress != "" {
		cfg.AdminAddress = fc.AdminAddress
	}
	if fc.DrainTimeoutSecs != 0 {
		cfg.DrainTimeout = time.Duration(fc.DrainTimeoutSecs) * time.Second
	}
	if fc.ReadyTimeoutSecs != 0 {
		cfg.ReadyTimeout = time.Duration(fc.ReadyTimeoutSecs) * time.Second
	}
	if fc.BackoffInitialMillis != 0 {
		cfg.BackoffInitial = time.Duration(fc.BackoffInitialMillis) * time.Millisecond
	}
	if fc.BackoffMaxSecs != 0 {
		cfg.BackoffMax = time.Duration(fc.BackoffMaxSecs) * time.Second
	}
	if fc.BackoffResetSecs != 0 {
		cfg.BackoffReset = time.Duration(fc.BackoffResetSecs) * time.Second
	}
	if fc.CrashThreshold != 0 {
		cfg.CrashThreshold = fc.CrashThreshold
	}
	if fc.CrashWindowSecs != 0 {
		cfg.CrashWindow = time.Duration(fc.CrashWindowSecs) * time.Second
	}
}
