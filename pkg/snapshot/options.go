package snapshot

import (
	"net/http"
	"time"

	"github.com/okian/arcade/pkg/logger"
)

// Option configures a Reader.
type Option func(*Reader)

// WithHTTPClient sets the client used for edge and version requests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reader) {
		if c != nil {
			r.client = c
		}
	}
}

// WithAPIBase sets the origin API base used by RefreshVersion.
func WithAPIBase(base string) Option {
	return func(r *Reader) { r.apiBase = base }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBreaker sets how many consecutive edge failures open the breaker and
// how long it stays open.
func WithBreaker(threshold uint32, cooldown time.Duration) Option {
	return func(r *Reader) {
		if threshold == 0 || cooldown <= 0 {
			return
		}
		r.breaker = newBreaker(threshold, cooldown, r.log)
	}
}

type fetchOptions struct {
	timeout time.Duration
}

// FetchOption adjusts a single Fetch.
type FetchOption func(*fetchOptions)

// WithTimeout overrides the state timeout for one fetch.
func WithTimeout(d time.Duration) FetchOption {
	return func(o *fetchOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
