package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds everything the supervisor needs to launch and police its
// worker pool. It is built once at startup (env, optional file, flags) and
// never mutated after the supervisor starts.
type Config struct {
	Host    string
	Port    int
	Workers int
	App     string

	// AdminAddress enables the read-only status/metrics listener when
	// non-empty. It is kept off the data-plane port.
	AdminAddress string

	DrainTimeout time.Duration
	ReadyTimeout time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffReset   time.Duration

	CrashThreshold int
	CrashWindow    time.Duration
}

// Default returns the built-in policy values.
func Default() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8000,
		Workers:        4,
		App:            "demo",
		DrainTimeout:   10 * time.Second,
		ReadyTimeout:   10 * time.Second,
		BackoffInitial: 200 * time.Millisecond,
		BackoffMax:     5 * time.Second,
		BackoffReset:   30 * time.Second,
		CrashThreshold: 5,
		CrashWindow:    10 * time.Second,
	}
}

// FromEnv builds a Config from PREFORK_* environment variables, falling
// back to Default for anything unset.
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("PREFORK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PREFORK_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PREFORK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("PREFORK_APP"); v != "" {
		cfg.App = v
	}
	if v := os.Getenv("PREFORK_ADMIN_ADDRESS"); v != "" {
		cfg.AdminAddress = v
	}
	if v := os.Getenv("PREFORK_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DrainTimeout = d
		}
	}

	return cfg
}

// Addr returns the data-plane listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the ranges the launch contract requires.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535, got %d", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if c.App == "" {
		return errors.New("application entrypoint must not be empty")
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive, got %s", c.DrainTimeout)
	}
	return nil
}
