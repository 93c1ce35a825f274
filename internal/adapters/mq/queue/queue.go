// Package queue carries jobs from the request path to background workers.
//
// Delivery is at-least-once: a job stays queued until it is acked. A nacked
// job is redelivered until it runs out of attempts.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

const (
	defaultQueueCapacity = 100_000
	defaultMaxAttempts   = 5
)

// Job is one unit of background work.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// NewJob encodes payload into a job of kind.
func NewJob(id, kind string, payload any) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{ID: id, Kind: kind, Payload: raw, EnqueuedAt: time.Now().UTC()}, nil
}

// Queue is implemented by InMemoryQueue and BadgerQueue.
type Queue interface {
	// Enqueue stores the job. It never waits for processing.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel of deliveries. The channel is closed when
	// the queue is closed or ctx is done.
	Dequeue(ctx context.Context) <-chan Job

	// Ack marks a delivered job as done.
	Ack(ctx context.Context, id string) error

	// Nack returns a delivered job for another attempt.
	Nack(ctx context.Context, id string, cause error) error

	// Len returns the number of jobs not yet acked.
	Len(ctx context.Context) int

	Close() error
}

// DeadLetterFunc is called once a job is set aside for good.
type DeadLetterFunc func(ctx context.Context, j Job, cause error)

// DeadLetterNotifier is implemented by queues that report jobs they stop
// delivering.
type DeadLetterNotifier interface {
	OnDeadLetter(fn DeadLetterFunc)
}

// InMemoryQueue implements Queue with a buffered channel. Jobs are lost on
// restart; use BadgerQueue when that matters.
type InMemoryQueue struct {
	jobs        chan Job
	capacity    int
	maxAttempts int
	log         logger.Logger

	mu       sync.RWMutex
	closed   bool
	inflight map[string]Job
	onDead   DeadLetterFunc
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &InMemoryQueue{
		jobs:        make(chan Job, cfg.capacity),
		capacity:    cfg.capacity,
		maxAttempts: cfg.maxAttempts,
		log:         cfg.log,
		inflight:    make(map[string]Job),
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	if j.ID == "" {
		return ErrEmptyJobID
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrQueueClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueDepth(len(q.jobs) + q.inflightLen())
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}
}

// Dequeue forwards jobs until the queue is closed or ctx is done.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-q.jobs:
				if !ok {
					return
				}
				q.track(j)
				select {
				case out <- j:
					metrics.RecordQueueDequeue()
					if j.Attempts == 0 {
						metrics.RecordQueueWait(float64(time.Since(j.EnqueuedAt).Milliseconds()))
					}
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Ack forgets a delivered job.
func (q *InMemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[id]; !ok {
		return ErrJobNotFound
	}
	delete(q.inflight, id)
	metrics.RecordQueueAck()
	metrics.UpdateQueueDepth(len(q.jobs) + len(q.inflight))
	return nil
}

// Nack requeues a delivered job, or drops it once attempts are exhausted.
func (q *InMemoryQueue) Nack(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	j, ok := q.inflight[id]
	if ok {
		delete(q.inflight, id)
	}
	closed := q.closed
	onDead := q.onDead
	q.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	metrics.RecordQueueNack()

	j.Attempts++
	if j.Attempts >= q.maxAttempts || closed {
		metrics.RecordQueueDead()
		q.log.Error(ctx, "dropping job after failed attempts",
			logger.String("job_id", id),
			logger.Int("attempts", j.Attempts),
			logger.Error(cause),
		)
		if onDead != nil {
			onDead(ctx, j, cause)
		}
		return nil
	}

	metrics.RecordQueueRedelivery()
	return q.Enqueue(ctx, j)
}

// OnDeadLetter registers fn for jobs dropped after their last attempt.
func (q *InMemoryQueue) OnDeadLetter(fn DeadLetterFunc) {
	q.mu.Lock()
	q.onDead = fn
	q.mu.Unlock()
}

func (q *InMemoryQueue) track(j Job) {
	q.mu.Lock()
	q.inflight[j.ID] = j
	q.mu.Unlock()
}

// inflightLen must be called with q.mu held.
func (q *InMemoryQueue) inflightLen() int {
	return len(q.inflight)
}

// Len returns queued plus in-flight jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := len(q.jobs) + len(q.inflight)
	metrics.UpdateQueueDepth(n)
	return n
}

// Close stops accepting jobs. Consumers drain what is buffered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
