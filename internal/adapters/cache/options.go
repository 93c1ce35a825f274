package cache

import (
	"time"

	"github.com/okian/arcade/pkg/logger"
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTTLPolicy replaces the default TTL policy.
func WithTTLPolicy(p TTLPolicy) Option {
	return func(c *Cache) {
		c.ttl = p
	}
}

// WithNamespaceTTL overrides the TTL of a single namespace.
func WithNamespaceTTL(ns string, d time.Duration) Option {
	return func(c *Cache) {
		if d <= 0 {
			return
		}
		m := make(map[string]time.Duration, len(c.ttl.PerNamespace)+1)
		for k, v := range c.ttl.PerNamespace {
			m[k] = v
		}
		m[ns] = d
		c.ttl.PerNamespace = m
	}
}
