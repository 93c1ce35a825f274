package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/arcade/internal/adapters/cache"
	"github.com/okian/arcade/internal/adapters/http/api"
	"github.com/okian/arcade/internal/adapters/http/swagger"
	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/adapters/repository"
	service "github.com/okian/arcade/internal/app"
	"github.com/okian/arcade/internal/config"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
	"github.com/okian/arcade/pkg/snapshot"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// application holds everything main starts and must stop.
type application struct {
	cfg     *config.Config
	db      *repository.DB
	queue   queue.Queue
	svc     *service.Service
	state   *snapshot.State
	handler http.Handler
}

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := configureLogging(cfg); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}
	log := logger.Get().Named("main")

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal(ctx, "startup failed", logger.Error(err))
	}

	go metrics.RunSystemSampler(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	app.close(shutdownCtx, log)
	log.Info(shutdownCtx, "server stopped")
}

func configureLogging(cfg *config.Config) error {
	if cfg.LogFormat == string(logger.FormatJSON) {
		if err := logger.Init(logger.WithFormat(logger.FormatJSON)); err != nil {
			return err
		}
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
		return err
	}
	return nil
}

// newApplication opens storage, builds the queue, cache and service, starts
// the workers and returns the HTTP handler.
func newApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	db, err := repository.Open(ctx, cfg.DatabasePath, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	q, err := openQueue(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	policy := cache.DefaultTTLPolicy()
	if cfg.CacheDefaultTTLSeconds > 0 {
		policy.Default = time.Duration(cfg.CacheDefaultTTLSeconds) * time.Second
	}
	for ns, ttl := range cfg.CacheTTLDurations() {
		policy.PerNamespace[ns] = ttl
	}
	qc := cache.NewLRU(cfg.CacheCapacity, cache.WithTTLPolicy(policy), cache.WithLogger(log.Named("cache")))

	// Mirror of the published snapshot version; the service seeds it on Start.
	state := snapshot.NewState(false, "", 0)

	svc := service.New(db, q,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxPageSize(cfg.MaxPageSize),
		service.WithCache(qc),
		service.WithSnapshotState(state),
	)

	if err := svc.Start(ctx); err != nil {
		_ = q.Close()
		_ = db.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	server := api.NewServer(svc,
		api.WithProduction(cfg.IsProduction()),
		api.WithSubmitRateLimit(cfg.SubmitRateLimit, cfg.SubmitRateWindow()),
		api.WithLogger(log.Named("api")),
	)

	return &application{
		cfg:     cfg,
		db:      db,
		queue:   q,
		svc:     svc,
		state:   state,
		handler: server.Handler(swagger.Register),
	}, nil
}

// openQueue selects the durable badger queue when a path is configured.
func openQueue(cfg *config.Config, log logger.Logger) (queue.Queue, error) {
	opts := []queue.Option{
		queue.WithCapacity(cfg.EventQueueSize),
		queue.WithMaxAttempts(cfg.QueueMaxAttempts),
		queue.WithLease(cfg.QueueLease()),
		queue.WithLogger(log.Named("queue")),
	}
	if cfg.QueuePath == "" {
		return queue.NewInMemoryQueue(opts...), nil
	}
	q, err := queue.OpenBadgerQueue(cfg.QueuePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return q, nil
}

// close stops the workers before closing the queue and the database, so
// in-flight jobs can settle.
func (a *application) close(ctx context.Context, log logger.Logger) {
	if err := a.svc.Stop(ctx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
	}
	if err := a.queue.Close(); err != nil {
		log.Error(ctx, "queue close failed", logger.Error(err))
	}
	if err := a.db.Close(); err != nil {
		log.Error(ctx, "database close failed", logger.Error(err))
	}
}
