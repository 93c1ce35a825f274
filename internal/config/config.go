// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and ARCADE_* env vars.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Environment is "production" or anything else; stack traces are only
	// rendered in error responses outside production.
	Environment string `koanf:"environment"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `koanf:"database_path"`

	// QueuePath is the badger directory for the durable job queue. Empty
	// selects the in-memory queue.
	QueuePath string `koanf:"queue_path"`

	// EventQueueSize bounds the in-memory queue and the dispatch buffer.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the in-flight job id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// QueueLeaseMS is how long a delivered job stays claimed before it is
	// redelivered.
	QueueLeaseMS int `koanf:"queue_lease_ms"`

	// QueueMaxAttempts moves a job to the dead set after this many failures.
	QueueMaxAttempts int `koanf:"queue_max_attempts"`

	// CacheCapacity bounds the number of cached query results.
	CacheCapacity int `koanf:"cache_capacity"`

	// CacheDefaultTTLSeconds applies to namespaces without an explicit TTL.
	CacheDefaultTTLSeconds int `koanf:"cache_default_ttl_s"`

	// CacheTTLs maps cache namespaces to TTL seconds.
	CacheTTLs map[string]int `koanf:"cache_ttls"`

	// MaxPageSize caps list endpoints' limit parameter.
	MaxPageSize int `koanf:"max_page_size"`

	// SubmitRateLimit and SubmitRateWindowSeconds bound POST /analytics per client IP.
	SubmitRateLimit         int `koanf:"submit_rate_limit"`
	SubmitRateWindowSeconds int `koanf:"submit_rate_window_s"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Environment:            "development",
		Addr:                   ":9080",
		DatabasePath:           "arcade.db",
		QueuePath:              "",
		EventQueueSize:         100_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             100_000,
		QueueLeaseMS:           30_000,
		QueueMaxAttempts:       5,
		CacheCapacity:          10_000,
		CacheDefaultTTLSeconds: 300,
		CacheTTLs: map[string]int{
			"system-configs":        1800,
			"categories":            300,
			"games":                 120,
			"analytics":             60,
			"game-position-history": 60,
		},
		MaxPageSize:             100,
		SubmitRateLimit:         600,
		SubmitRateWindowSeconds: 60,
	}
}

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// QueueLease returns QueueLeaseMS as a duration.
func (c *Config) QueueLease() time.Duration {
	return time.Duration(c.QueueLeaseMS) * time.Millisecond
}

// SubmitRateWindow returns SubmitRateWindowSeconds as a duration.
func (c *Config) SubmitRateWindow() time.Duration {
	return time.Duration(c.SubmitRateWindowSeconds) * time.Second
}

// CacheTTLDurations converts CacheTTLs to durations.
func (c *Config) CacheTTLDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.CacheTTLs))
	for ns, s := range c.CacheTTLs {
		if s > 0 {
			out[ns] = time.Duration(s) * time.Second
		}
	}
	return out
}
