// Package snapshot reads pre-generated catalog documents from an edge host
// and tells the caller when to fall back to the live API.
//
// The edge is an accelerator only. Every failure, from a timeout to a
// malformed body, is reported as Source == SourceOrigin with nil data.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
	"github.com/sony/gobreaker/v2"
)

// Sources reported in Result.
const (
	SourceSnapshot = "snapshot"
	SourceOrigin   = "origin"
)

const (
	defaultTimeout   = 3 * time.Second
	maxBodyBytes     = 8 << 20
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

var errStatus = errors.New("unexpected status")

// Result is the outcome of Fetch. Data is nil whenever Source is
// SourceOrigin.
type Result struct {
	Data     json.RawMessage
	Source   string
	Duration time.Duration
}

// Origin serves a descriptor from the live API.
type Origin interface {
	Fetch(ctx context.Context, d Descriptor) (json.RawMessage, error)
}

// OriginFunc adapts a function to Origin.
type OriginFunc func(ctx context.Context, d Descriptor) (json.RawMessage, error)

// Fetch calls f.
func (f OriginFunc) Fetch(ctx context.Context, d Descriptor) (json.RawMessage, error) {
	return f(ctx, d)
}

// Reader fetches snapshot documents.
type Reader struct {
	state   *State
	client  *http.Client
	apiBase string
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	log     logger.Logger
}

// NewReader creates a reader over state.
func NewReader(state *State, opts ...Option) *Reader {
	r := &Reader{
		state:  state,
		client: &http.Client{},
		log:    logger.Get().Named("snapshot"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = newBreaker(breakerThreshold, breakerCooldown, r.log)
	}
	return r
}

func newBreaker(threshold uint32, cooldown time.Duration, log logger.Logger) *gobreaker.CircuitBreaker[json.RawMessage] {
	return gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "snapshot-edge",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "snapshot breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
}

// State returns the reader's state.
func (r *Reader) State() *State { return r.state }

// Fetch reads d from the edge. It never fails: on any problem the result
// says SourceOrigin and the caller queries the live API itself.
func (r *Reader) Fetch(ctx context.Context, d Descriptor, opts ...FetchOption) Result {
	start := time.Now()
	enabled, baseURL, timeout := r.state.settings()

	fo := fetchOptions{timeout: timeout}
	for _, opt := range opts {
		opt(&fo)
	}

	if !enabled || baseURL == "" {
		return r.origin(start, "disabled")
	}

	target, err := r.URL(d)
	if err != nil {
		r.log.Warn(ctx, "bad snapshot url", logger.String("resource", d.ResourceType), logger.Error(err))
		return r.origin(start, "url")
	}

	data, err := r.breaker.Execute(func() (json.RawMessage, error) {
		return r.get(ctx, target, fo.timeout)
	})
	if err != nil {
		r.log.Debug(ctx, "snapshot fetch fell back to origin",
			logger.String("resource", d.ResourceType),
			logger.String("url", target),
			logger.Error(err),
		)
		return r.origin(start, reason(err))
	}

	payload, err := unwrap(data, d.WrapperKey)
	if err != nil {
		r.log.Warn(ctx, "malformed snapshot document", logger.String("resource", d.ResourceType), logger.Error(err))
		return r.origin(start, "malformed")
	}

	r.state.snapshotHits.Add(1)
	elapsed := time.Since(start)
	metrics.RecordSnapshotFetch(SourceSnapshot, float64(elapsed.Milliseconds()))
	return Result{Data: payload, Source: SourceSnapshot, Duration: elapsed}
}

// FetchOrOrigin reads d from the edge and, on fallback, from origin.
func (r *Reader) FetchOrOrigin(ctx context.Context, d Descriptor, origin Origin, opts ...FetchOption) (Result, error) {
	res := r.Fetch(ctx, d, opts...)
	if res.Source == SourceSnapshot {
		return res, nil
	}
	start := time.Now()
	data, err := origin.Fetch(ctx, d)
	if err != nil {
		return Result{Source: SourceOrigin, Duration: res.Duration + time.Since(start)}, fmt.Errorf("origin %s: %w", d.ResourceType, err)
	}
	return Result{Data: data, Source: SourceOrigin, Duration: res.Duration + time.Since(start)}, nil
}

// URL returns the edge URL for d, with ?v= set when a version is known.
func (r *Reader) URL(d Descriptor) (string, error) {
	_, baseURL, _ := r.state.settings()
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(d.Path, "/"))
	if err != nil {
		return "", err
	}
	if v := r.state.Version(); v > 0 {
		q := u.Query()
		q.Set("v", strconv.FormatInt(v, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type versionEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Version   int64     `json:"version"`
		UpdatedAt time.Time `json:"updatedAt"`
		Enabled   *bool     `json:"enabled"`
	} `json:"data"`
}

// RefreshVersion reads the published version from {apiBase}/cdn/version.
// Fetches in flight keep the version they started with.
func (r *Reader) RefreshVersion(ctx context.Context) (int64, error) {
	if r.apiBase == "" {
		return r.state.Version(), errors.New("snapshot: api base not configured")
	}
	_, _, timeout := r.state.settings()
	body, err := r.get(ctx, strings.TrimRight(r.apiBase, "/")+"/cdn/version", timeout)
	if err != nil {
		metrics.RecordSnapshotFailure("version")
		return r.state.Version(), fmt.Errorf("snapshot: refresh version: %w", err)
	}

	var env versionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.RecordSnapshotFailure("version")
		return r.state.Version(), fmt.Errorf("snapshot: decode version: %w", err)
	}

	r.state.SetVersion(env.Data.Version)
	if env.Data.Enabled != nil {
		r.state.SetEnabled(*env.Data.Enabled)
	}
	metrics.UpdateSnapshotVersion(env.Data.Version)
	r.log.Info(ctx, "snapshot version refreshed", logger.Int64("version", env.Data.Version))
	return env.Data.Version, nil
}

func (r *Reader) get(ctx context.Context, target string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func (r *Reader) origin(start time.Time, why string) Result {
	r.state.originHits.Add(1)
	elapsed := time.Since(start)
	metrics.RecordSnapshotFetch(SourceOrigin, float64(elapsed.Milliseconds()))
	if why != "disabled" {
		metrics.RecordSnapshotFailure(why)
	}
	return Result{Source: SourceOrigin, Duration: elapsed}
}

// unwrap returns the value under key, or the whole body if key is absent.
func unwrap(body []byte, key string) (json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, errors.New("invalid json")
	}
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err == nil {
			if v, ok := wrapped[key]; ok {
				return v, nil
			}
		}
	}
	return json.RawMessage(body), nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errStatus):
		return "status"
	default:
		return "network"
	}
}
