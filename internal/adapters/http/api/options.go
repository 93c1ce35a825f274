package api

import (
	"time"

	"github.com/okian/arcade/pkg/logger"
)

type settings struct {
	production   bool
	corsOrigins  []string
	submitLimit  int
	submitWindow time.Duration
	log          logger.Logger
}

func defaultSettings() settings {
	return settings{
		corsOrigins:  []string{"*"},
		submitLimit:  600,
		submitWindow: time.Minute,
		log:          logger.Get().Named("api"),
	}
}

// Option configures the Server.
type Option func(*settings)

// WithProduction hides stack traces in error responses.
func WithProduction(on bool) Option {
	return func(s *settings) { s.production = on }
}

// WithCORSOrigins sets the allowed origins. Empty keeps the wildcard.
func WithCORSOrigins(origins ...string) Option {
	return func(s *settings) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithSubmitRateLimit bounds POST /analytics per client IP. A limit of zero
// disables limiting.
func WithSubmitRateLimit(limit int, window time.Duration) Option {
	return func(s *settings) {
		if limit < 0 {
			limit = 0
		}
		s.submitLimit = limit
		if window > 0 {
			s.submitWindow = window
		}
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}
