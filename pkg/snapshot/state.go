package snapshot

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the per-process configuration and counters of a Reader. The
// version is read on every fetch and replaced by RefreshVersion without
// blocking readers.
type State struct {
	mu      sync.RWMutex
	enabled bool
	baseURL string
	timeout time.Duration

	version      atomic.Int64
	snapshotHits atomic.Int64
	originHits   atomic.Int64
}

// Stats is a copy of State.
type Stats struct {
	Enabled        bool   `json:"enabled"`
	BaseURL        string `json:"baseUrl"`
	TimeoutMS      int64  `json:"timeoutMs"`
	CurrentVersion int64  `json:"currentVersion"`
	SnapshotHits   int64  `json:"snapshotHits"`
	OriginHits     int64  `json:"originHits"`
}

// NewState returns a state with no known version. A non-positive timeout
// means the default of 3s.
func NewState(enabled bool, baseURL string, timeout time.Duration) *State {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &State{enabled: enabled, baseURL: baseURL, timeout: timeout}
}

func (s *State) settings() (enabled bool, baseURL string, timeout time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled, s.baseURL, s.timeout
}

// SetEnabled turns the snapshot path on or off.
func (s *State) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

// Enabled reports whether the snapshot path is on.
func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Version returns the known snapshot version, 0 if none.
func (s *State) Version() int64 { return s.version.Load() }

// SetVersion replaces the known snapshot version.
func (s *State) SetVersion(v int64) { s.version.Store(v) }

// Stats returns a copy of the configuration and counters.
func (s *State) Stats() Stats {
	enabled, baseURL, timeout := s.settings()
	return Stats{
		Enabled:        enabled,
		BaseURL:        baseURL,
		TimeoutMS:      timeout.Milliseconds(),
		CurrentVersion: s.version.Load(),
		SnapshotHits:   s.snapshotHits.Load(),
		OriginHits:     s.originHits.Load(),
	}
}
