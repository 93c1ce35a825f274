package queue

import (
	"time"

	"github.com/okian/arcade/pkg/logger"
)

type settings struct {
	capacity     int
	maxAttempts  int
	lease        time.Duration
	pollInterval time.Duration
	syncWrites   bool
	log          logger.Logger
}

func defaultSettings() settings {
	return settings{
		capacity:     defaultQueueCapacity,
		maxAttempts:  defaultMaxAttempts,
		lease:        defaultLease,
		pollInterval: defaultPollInterval,
		syncWrites:   true,
		log:          logger.Get().Named("queue"),
	}
}

// Option configures a queue.
type Option func(*settings)

// WithCapacity bounds the number of unacked jobs.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithMaxAttempts sets how many deliveries a job gets before it is set aside.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLease sets how long a delivered job is hidden from redelivery.
// Only BadgerQueue uses leases.
func WithLease(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithPollInterval sets how often BadgerQueue rescans for expired leases.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSyncWrites toggles fsync on every BadgerQueue write.
func WithSyncWrites(on bool) Option {
	return func(s *settings) {
		s.syncWrites = on
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
