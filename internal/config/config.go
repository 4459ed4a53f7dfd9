// Package config defines service configuration structures and loading hooks.
//
// Values are layered: defaults from New, then an optional YAML file named by
// PAIRUP_CONFIG, then PAIRUP_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/pairup/internal/domain/scoring"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the inbound command queue across all partitions.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of command partitions and dispatch workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the request id cache.
	DedupeSize int `koanf:"dedupe_size"`
	// SendBuffer is the per-connection outbound frame buffer.
	SendBuffer int `koanf:"send_buffer"`

	// Scorer selects the compatibility function: overlap, exchange or proficiency.
	Scorer             string  `koanf:"scorer"`
	SkillWeight        float64 `koanf:"skill_weight"`
	AvailabilityWeight float64 `koanf:"availability_weight"`
	// AutoMatchThreshold is the minimum score for an automatic match.
	AutoMatchThreshold float64 `koanf:"auto_match_threshold"`
	// MatchListLimit truncates pushed candidate lists. 0 means unlimited.
	MatchListLimit int `koanf:"match_list_limit"`

	// QueueTTL evicts entries queued longer than this. 0 disables eviction.
	QueueTTL time.Duration `koanf:"queue_ttl"`
	// SweepInterval runs periodic auto-match attempts. 0 disables the sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// LeaveOnDisconnect removes a participant when their connection closes.
	LeaveOnDisconnect bool `koanf:"leave_on_disconnect"`

	// StoreDriver selects the profile and session backend.
	StoreDriver     string        `koanf:"store_driver"`
	SQLitePath      string        `koanf:"sqlite_path"`
	PostgresDSN     string        `koanf:"postgres_dsn"`
	PostgresMigrate bool          `koanf:"postgres_migrate"`
	PersistTimeout  time.Duration `koanf:"persist_timeout"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshInterval is how often sampled gauges are refreshed.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		QueueSize:              10_000,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             50_000,
		SendBuffer:             64,
		Scorer:                 "overlap",
		SkillWeight:            2.0,
		AvailabilityWeight:     1.0,
		AutoMatchThreshold:     1.0,
		StoreDriver:            StoreMemory,
		SQLitePath:             "pairup.sqlite3",
		PostgresMigrate:        true,
		LeaveOnDisconnect:      true,
		PersistTimeout:         5 * time.Second,
		MetricsEnabled:         true,
		MetricsRefreshInterval: 10 * time.Second,
		ShutdownTimeout:        30 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !scoring.Known(c.Scorer):
		return fmt.Errorf("%w: unknown scorer %q", ErrInvalidConfig, c.Scorer)
	case c.SkillWeight < 0 || c.AvailabilityWeight < 0:
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	case c.AutoMatchThreshold < 0:
		return fmt.Errorf("%w: auto_match_threshold must not be negative", ErrInvalidConfig)
	case c.MatchListLimit < 0:
		return fmt.Errorf("%w: match_list_limit must not be negative", ErrInvalidConfig)
	case c.QueueTTL < 0 || c.SweepInterval < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.MetricsRefreshInterval <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
