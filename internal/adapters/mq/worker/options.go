package worker

import (
	"github.com/okian/arcade/internal/domain/dedupe"
	"github.com/okian/arcade/pkg/logger"
)

type config struct {
	name    string
	log     logger.Logger
	deduper dedupe.Deduper
}

// Option configures a Pool.
type Option func(*config)

// WithName sets the prefix used for worker names in logs.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDeduper replaces the default in-memory deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(c *config) {
		if d != nil {
			c.deduper = d
		}
	}
}
