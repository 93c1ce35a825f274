package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

const (
	defaultLease        = 30 * time.Second
	defaultPollInterval = time.Second

	prefixPending = "pending:"
	prefixDead    = "dead:"
)

// entry is the stored form of a job.
type entry struct {
	Job         Job       `json:"job"`
	LeaseExpiry time.Time `json:"leaseExpiry,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

func (e *entry) claimable(now time.Time) bool {
	return e.LeaseExpiry.IsZero() || now.After(e.LeaseExpiry)
}

// BadgerQueue is a durable queue on BadgerDB. A job is written under
// pending:<id> before Enqueue returns. Delivering a job leases it; Ack
// deletes it, Nack clears the lease. A lease that runs out (the consumer
// died or is stuck) makes the job deliverable again. Jobs that exhaust
// their attempts move to dead:<id>.
//
// Keys iterate in id order, so time-ordered ids give FIFO delivery.
type BadgerQueue struct {
	db  *badger.DB
	cfg settings
	log logger.Logger

	pending atomic.Int64
	wake    chan struct{}

	once sync.Once
	out  chan Job

	mu     sync.RWMutex
	closed bool
	onDead DeadLetterFunc
	stop   chan struct{}
	done   chan struct{}
}

// OpenBadgerQueue opens (or creates) a queue stored at path. Leases held by
// a previous process are released so their jobs are delivered again.
func OpenBadgerQueue(path string, opts ...Option) (*BadgerQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidQueue)
	}
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badger.DefaultOptions(path)
	bopts.SyncWrites = cfg.syncWrites
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	q := &BadgerQueue{
		db:   db,
		cfg:  cfg,
		log:  cfg.log,
		wake: make(chan struct{}, 1),
		out:  make(chan Job),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	recovered, err := q.recover()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	metrics.UpdateQueueCapacity(cfg.capacity)
	metrics.UpdateQueueDepth(int(q.pending.Load()))
	q.log.Info(context.Background(), "queue opened",
		logger.String("path", path),
		logger.Int64("pending", q.pending.Load()),
		logger.Int("recovered_leases", recovered),
	)
	return q, nil
}

// recover counts pending jobs and clears leases left by a previous run.
func (q *BadgerQueue) recover() (int, error) {
	var count int64
	var leased []entry

	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
			var e entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				q.log.Warn(context.Background(), "skipping malformed queue entry", logger.String("key", string(it.Item().Key())), logger.Error(err))
				continue
			}
			if !e.LeaseExpiry.IsZero() {
				leased = append(leased, e)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan pending jobs: %w", err)
	}

	for i := range leased {
		e := leased[i]
		e.LeaseExpiry = time.Time{}
		if err := q.put(prefixPending, &e); err != nil {
			return 0, fmt.Errorf("release lease %s: %w", e.Job.ID, err)
		}
		metrics.RecordQueueRedelivery()
	}

	q.pending.Store(count)
	return len(leased), nil
}

// Enqueue persists the job and wakes the dispatcher.
func (q *BadgerQueue) Enqueue(ctx context.Context, j Job) error {
	if j.ID == "" {
		return ErrEmptyJobID
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}
	if q.pending.Load() >= int64(q.cfg.capacity) {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrQueueFull
	}

	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	if err := q.put(prefixPending, &entry{Job: j}); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "write_failed")
		return fmt.Errorf("persist job: %w", err)
	}

	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueDepth(int(q.pending.Add(1)))
	q.signal()
	return nil
}

// Dequeue starts the dispatcher on first use and returns the shared
// delivery channel.
func (q *BadgerQueue) Dequeue(ctx context.Context) <-chan Job {
	q.once.Do(func() {
		go q.dispatch(ctx)
	})
	return q.out
}

func (q *BadgerQueue) dispatch(ctx context.Context) {
	defer close(q.done)
	defer close(q.out)

	ticker := time.NewTicker(q.cfg.pollInterval)
	defer ticker.Stop()

	for {
		j, ok, err := q.claim(time.Now())
		if err != nil {
			q.log.Error(ctx, "claiming job failed", logger.Error(err))
		}
		if ok {
			select {
			case q.out <- j:
				metrics.RecordQueueDequeue()
				if j.Attempts == 0 {
					metrics.RecordQueueWait(float64(time.Since(j.EnqueuedAt).Milliseconds()))
				}
				continue
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// claim leases the first deliverable job in key order. The lease starts
// right before the job is handed to a consumer.
func (q *BadgerQueue) claim(now time.Time) (Job, bool, error) {
	var (
		claimed entry
		found   bool
	)
	err := q.db.Update(func(txn *badger.Txn) error {
		claimed, found = q.firstClaimable(txn, now)
		if !found {
			return nil
		}
		if !claimed.LeaseExpiry.IsZero() {
			metrics.RecordQueueRedelivery()
		}
		claimed.LeaseExpiry = now.Add(q.cfg.lease)
		data, err := json.Marshal(&claimed)
		if err != nil {
			return err
		}
		return txn.Set([]byte(prefixPending+claimed.Job.ID), data)
	})
	if err != nil || !found {
		return Job{}, false, err
	}
	return claimed.Job, true, nil
}

func (q *BadgerQueue) firstClaimable(txn *badger.Txn, now time.Time) (entry, bool) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(prefixPending)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var e entry
		if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
			continue
		}
		if e.claimable(now) {
			return e, true
		}
	}
	return entry{}, false
}

// Ack deletes a delivered job.
func (q *BadgerQueue) Ack(_ context.Context, id string) error {
	if id == "" {
		return ErrEmptyJobID
	}
	key := []byte(prefixPending + id)
	err := q.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	metrics.RecordQueueAck()
	metrics.UpdateQueueDepth(int(q.pending.Add(-1)))
	return nil
}

// Nack releases the lease so the job is delivered again, or moves it to the
// dead set when it has used all its attempts.
func (q *BadgerQueue) Nack(ctx context.Context, id string, cause error) error {
	if id == "" {
		return ErrEmptyJobID
	}
	key := []byte(prefixPending + id)

	var (
		dead     bool
		attempts int
		deadJob  Job
	)
	err := q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		var e entry
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
			return err
		}

		e.Job.Attempts++
		e.LeaseExpiry = time.Time{}
		if cause != nil {
			e.LastError = cause.Error()
		}
		attempts = e.Job.Attempts

		data, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		if e.Job.Attempts >= q.cfg.maxAttempts {
			dead = true
			deadJob = e.Job
			if err := txn.Delete(key); err != nil {
				return err
			}
			return txn.Set([]byte(prefixDead+id), data)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	metrics.RecordQueueNack()
	if dead {
		metrics.RecordQueueDead()
		metrics.UpdateQueueDepth(int(q.pending.Add(-1)))
		q.log.Error(ctx, "job moved to dead set",
			logger.String("job_id", id),
			logger.Int("attempts", attempts),
			logger.Error(cause),
		)
		q.mu.RLock()
		onDead := q.onDead
		q.mu.RUnlock()
		if onDead != nil {
			onDead(ctx, deadJob, cause)
		}
		return nil
	}
	q.signal()
	return nil
}

// OnDeadLetter registers fn for jobs moved to the dead set.
func (q *BadgerQueue) OnDeadLetter(fn DeadLetterFunc) {
	q.mu.Lock()
	q.onDead = fn
	q.mu.Unlock()
}

// Dead returns jobs that exhausted their attempts.
func (q *BadgerQueue) Dead(_ context.Context) ([]Job, error) {
	var jobs []Job
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixDead)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			jobs = append(jobs, e.Job)
		}
		return nil
	})
	return jobs, err
}

// Len returns the number of jobs not yet acked, leased or not.
func (q *BadgerQueue) Len(_ context.Context) int {
	return int(q.pending.Load())
}

// Close stops the dispatcher and closes the database. Unacked jobs stay on
// disk and are delivered after the next open.
func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stop)
	q.mu.Unlock()

	started := true
	q.once.Do(func() {
		started = false
		close(q.done)
		close(q.out)
	})
	if started {
		<-q.done
	}
	return q.db.Close()
}

func (q *BadgerQueue) put(prefix string, e *entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefix+e.Job.ID), data)
	})
}

func (q *BadgerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
