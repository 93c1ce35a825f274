// Package service wires the repositories, the job queue, the worker pool and
// the query cache into the operations the HTTP API exposes.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/arcade/internal/adapters/cache"
	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/adapters/mq/worker"
	"github.com/okian/arcade/internal/adapters/repository"
	"github.com/okian/arcade/internal/domain/dedupe"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/snapshot"
)

const (
	defaultPageSize      = 20
	defaultMaxPageSize   = 100
	defaultDedupeSize    = 50_000
	defaultCacheCapacity = 10_000
	shutdownTimeout      = 30 * time.Second
)

// Service implements the API dependencies.
type Service struct {
	db      *repository.DB
	usage   *repository.UsageRepository
	rank    *repository.RankRepository
	catalog *repository.CatalogRepository
	configs *repository.ConfigRepository
	cdn     *repository.CDNRepository

	queue    queue.Queue
	pool     *worker.Pool
	cache    *cache.Cache
	snapshot *snapshot.State

	workerCount int
	dedupeSize  int
	maxPageSize int
	now         func() time.Time
	log         logger.Logger

	// pending holds accepted events until a worker persists them, so that
	// an early finalize can persist them first.
	pendingMu sync.Mutex
	pending   map[string]model.UsageEvent

	accepted  atomic.Int64
	persisted atomic.Int64
	pruned    atomic.Int64

	mu        sync.Mutex
	started   bool
	startedAt time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithDedupeSize sets the size of the delivered job id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxPageSize caps the limit of paged reads.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithCache sets the query cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithSnapshotState keeps st in step with the published snapshot version
// and enabled flag. The server never reads the edge, so st is a mirror of
// the cdn_state row, not a reader's counters.
func WithSnapshotState(st *snapshot.State) Option {
	return func(s *Service) { s.snapshot = st }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Service on an open database and queue.
func New(db *repository.DB, q queue.Queue, opts ...Option) *Service {
	s := &Service{
		db:          db,
		usage:       repository.NewUsageRepository(db),
		rank:        repository.NewRankRepository(db),
		catalog:     repository.NewCatalogRepository(db),
		configs:     repository.NewConfigRepository(db),
		cdn:         repository.NewCDNRepository(db),
		queue:       q,
		dedupeSize:  defaultDedupeSize,
		maxPageSize: defaultMaxPageSize,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.Get().Named("service"),
		pending:     make(map[string]model.UsageEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewLRU(defaultCacheCapacity)
	}
	return s
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if n, ok := s.queue.(queue.DeadLetterNotifier); ok {
		n.OnDeadLetter(s.deadLettered)
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.ProcessorFunc(s.process),
		worker.WithName("usage-worker"),
		worker.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))),
	)
	s.pool.Start(ctx)

	if s.snapshot != nil {
		if v, err := s.cdn.Version(ctx); err == nil {
			s.mirrorSnapshot(v)
		} else {
			s.log.Warn(ctx, "snapshot version unavailable", logger.Error(err))
		}
	}

	s.started = true
	s.startedAt = s.now()
	s.log.Info(ctx, "service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_depth", s.queue.Len(ctx)),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop drains the worker pool. The queue and database are closed by their
// owner.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := s.pool.Shutdown(ctx)

	s.started = false
	s.log.Info(ctx, "service stopped", logger.Int("pending", s.pendingLen()))
	return err
}

// Ready reports whether the database answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Stats returns runtime counters.
func (s *Service) Stats(ctx context.Context) types.ServiceStats {
	s.mu.Lock()
	pool, startedAt := s.pool, s.startedAt
	s.mu.Unlock()

	st := types.ServiceStats{
		QueueDepth:   s.queue.Len(ctx),
		Accepted:     s.accepted.Load(),
		Persisted:    s.persisted.Load(),
		Pruned:       s.pruned.Load(),
		Pending:      s.pendingLen(),
		CacheEntries: s.cache.Len(),
	}
	if pool != nil {
		ps := pool.Stats()
		st.WorkerCount = ps.Workers
		st.Failed = ps.Failed + ps.Dropped
		st.InFlight = int(ps.InFlight)
		st.UptimeSeconds = s.now().Sub(startedAt).Seconds()
	}
	if s.snapshot != nil {
		st.SnapshotVersion = s.snapshot.Version()
		st.SnapshotEnabled = s.snapshot.Enabled()
	}
	return st
}

// page normalises pagination to 1-based pages and a bounded limit.
func (s *Service) page(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = defaultPageSize
	case limit > s.maxPageSize:
		limit = s.maxPageSize
	}
	return page, limit
}

// invalidate purges namespaces after a committed write.
func (s *Service) invalidate(ctx context.Context, namespaces ...string) {
	for _, ns := range namespaces {
		s.cache.Invalidate(ctx, ns+":*")
	}
}
