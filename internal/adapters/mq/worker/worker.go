// Package worker drains a queue and hands each job to a Processor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/domain/dedupe"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Processor handles one job. A nil return acks the job. Any other error
// nacks it unless it is wrapped with Permanent.
type Processor interface {
	Process(ctx context.Context, j queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, j queue.Job) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Source is the part of a queue workers consume.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string, cause error) error
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. The job is acked and dropped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Stats is a point-in-time view of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	InFlight  int64 `json:"inFlight"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Duplicate int64 `json:"duplicate"`
}

// Pool runs a fixed number of workers against one Source.
type Pool struct {
	src     Source
	proc    Processor
	deduper dedupe.Deduper
	size    int
	name    string
	log     logger.Logger

	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	duplicate atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool of workerCount workers. A count below one means
// twice the number of CPUs.
func NewPool(workerCount int, src Source, proc Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	cfg := config{
		name: "worker",
		log:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.deduper == nil {
		cfg.deduper = dedupe.NewInMemoryDeduper()
	}

	return &Pool{
		src:     src,
		proc:    proc,
		deduper: cfg.deduper,
		size:    workerCount,
		name:    cfg.name,
		log:     cfg.log,
	}
}

// Start launches the workers. They stop when ctx is done, the source
// closes its delivery channel, or Shutdown is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	jobs := p.src.Dequeue(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.name+"-"+strconv.Itoa(i), jobs)
	}

	metrics.UpdateWorkerCount(p.size)
	p.log.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

func (p *Pool) run(ctx context.Context, name string, jobs <-chan queue.Job) {
	defer p.wg.Done()
	log := p.log.Named(name)

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			p.handle(ctx, log, j)
		}
	}
}

// handle runs one job and settles it with the source. A job that has
// started runs to completion on a detached context, so shutdown does not
// turn it into a failure.
//
// A redelivery of a job that is still running (its lease ran out) is left
// untouched: the running attempt owns the entry and acks or nacks it. Only
// a redelivery of a completed job is acked.
func (p *Pool) handle(ctx context.Context, log logger.Logger, j queue.Job) {
	settle := context.WithoutCancel(ctx)

	switch p.deduper.Claim(ctx, j.ID) {
	case dedupe.StatusInFlight:
		p.duplicate.Add(1)
		metrics.RecordWorkerDuplicate()
		log.Debug(ctx, "job still running, skipping redelivery", logger.String("job_id", j.ID))
		return
	case dedupe.StatusDone:
		p.duplicate.Add(1)
		metrics.RecordWorkerDuplicate()
		if err := p.src.Ack(settle, j.ID); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			log.Warn(ctx, "ack of duplicate failed", logger.String("job_id", j.ID), logger.Error(err))
		}
		return
	case dedupe.StatusNew:
	}

	p.inFlight.Add(1)
	metrics.AddWorkerActive(1)
	start := time.Now()
	err := p.process(settle, j)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	metrics.AddWorkerActive(-1)
	p.inFlight.Add(-1)

	switch {
	case err == nil:
		p.processed.Add(1)
		p.deduper.Complete(ctx, j.ID)
		if ackErr := p.src.Ack(settle, j.ID); ackErr != nil {
			log.Warn(ctx, "ack failed", logger.String("job_id", j.ID), logger.Error(ackErr))
		}
	case IsPermanent(err):
		p.dropped.Add(1)
		p.deduper.Complete(ctx, j.ID)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "permanent")
		log.Error(ctx, "dropping job",
			logger.String("job_id", j.ID),
			logger.String("kind", j.Kind),
			logger.Error(err),
		)
		if ackErr := p.src.Ack(settle, j.ID); ackErr != nil {
			log.Warn(ctx, "ack failed", logger.String("job_id", j.ID), logger.Error(ackErr))
		}
	default:
		p.failed.Add(1)
		p.deduper.Unrecord(ctx, j.ID)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process")
		log.Warn(ctx, "job failed, returning to queue",
			logger.String("job_id", j.ID),
			logger.String("kind", j.Kind),
			logger.Int("attempts", j.Attempts+1),
			logger.Error(err),
		)
		if nackErr := p.src.Nack(settle, j.ID, err); nackErr != nil {
			log.Error(ctx, "nack failed", logger.String("job_id", j.ID), logger.Error(nackErr))
		}
	}
}

func (p *Pool) process(ctx context.Context, j queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing job %s: %v", j.ID, r)
		}
	}()
	return p.proc.Process(ctx, j)
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.size,
		InFlight:  p.inFlight.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Duplicate: p.duplicate.Load(),
	}
}

// Shutdown stops the workers and waits for jobs in progress to settle.
// The source is not closed; its owner does that.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	ctx, stop := context.WithTimeout(ctx, poolShutdownTimeout)
	defer stop()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		p.log.Info(ctx, "worker pool stopped", logger.Int64("processed", p.processed.Load()))
		return nil
	case <-ctx.Done():
		p.log.Warn(ctx, "worker pool shutdown timed out", logger.Int64("in_flight", p.inFlight.Load()))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
