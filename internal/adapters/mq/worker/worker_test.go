package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/adapters/mq/worker"
	"github.com/okian/arcade/internal/domain/dedupe"
	"github.com/smartystreets/goconvey/convey"
)

func newJob(t *testing.T, id string) queue.Job {
	t.Helper()
	j, err := queue.NewJob(id, "test", map[string]string{"id": id})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// stubSource delivers a fixed channel and records settlements.
type stubSource struct {
	ch     chan queue.Job
	mu     sync.Mutex
	acked  []string
	nacked []string
}

func newStubSource() *stubSource { return &stubSource{ch: make(chan queue.Job, 16)} }

func (s *stubSource) Dequeue(context.Context) <-chan queue.Job { return s.ch }

func (s *stubSource) Ack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *stubSource) Nack(_ context.Context, id string, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nacked = append(s.nacked, id)
	return nil
}

func (s *stubSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked), len(s.nacked)
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over an in-memory queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithMaxAttempts(3))
		defer q.Close()

		var handled atomic.Int64
		pool := worker.NewPool(4, q, worker.ProcessorFunc(func(context.Context, queue.Job) error {
			handled.Add(1)
			return nil
		}))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		convey.Convey("Every job is processed and acked", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, newJob(t, fmt.Sprintf("job-%d", i))), convey.ShouldBeNil)
			}
			convey.So(eventually(func() bool { return q.Len(ctx) == 0 && handled.Load() == 20 }), convey.ShouldBeTrue)
			convey.So(pool.Stats().Processed, convey.ShouldEqual, 20)
			convey.So(pool.Size(), convey.ShouldEqual, 4)
		})
	})

	convey.Convey("Given a processor that fails once", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithMaxAttempts(3))
		defer q.Close()

		var calls atomic.Int64
		pool := worker.NewPool(1, q, worker.ProcessorFunc(func(context.Context, queue.Job) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		}))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		convey.So(q.Enqueue(ctx, newJob(t, "job-1")), convey.ShouldBeNil)

		convey.Convey("The redelivery is not mistaken for a duplicate", func() {
			convey.So(eventually(func() bool { return calls.Load() == 2 && q.Len(ctx) == 0 }), convey.ShouldBeTrue)
			stats := pool.Stats()
			convey.So(stats.Failed, convey.ShouldEqual, 1)
			convey.So(stats.Processed, convey.ShouldEqual, 1)
			convey.So(stats.Duplicate, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a badger queue whose lease is shorter than processing", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q, err := queue.OpenBadgerQueue(t.TempDir(),
			queue.WithLease(100*time.Millisecond),
			queue.WithPollInterval(20*time.Millisecond),
			queue.WithMaxAttempts(3),
			queue.WithSyncWrites(false),
		)
		convey.So(err, convey.ShouldBeNil)
		defer q.Close()

		var calls atomic.Int64
		pool := worker.NewPool(2, q, worker.ProcessorFunc(func(context.Context, queue.Job) error {
			if calls.Add(1) == 1 {
				time.Sleep(400 * time.Millisecond)
				return errors.New("slow failure")
			}
			return nil
		}))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		convey.So(q.Enqueue(ctx, newJob(t, "job-1")), convey.ShouldBeNil)

		convey.Convey("The failed first attempt is retried, not lost to its redelivery", func() {
			convey.So(eventually(func() bool { return pool.Stats().Processed == 1 && q.Len(ctx) == 0 }), convey.ShouldBeTrue)
			stats := pool.Stats()
			convey.So(stats.Failed, convey.ShouldEqual, 1)
			convey.So(stats.Duplicate, convey.ShouldBeGreaterThanOrEqualTo, 1)
			convey.So(calls.Load(), convey.ShouldEqual, 2)

			dead, err := q.Dead(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(dead, convey.ShouldBeEmpty)
		})
	})

	convey.Convey("Given a stub source", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		src := newStubSource()

		convey.Convey("A job delivered twice is processed once", func() {
			var calls atomic.Int64
			pool := worker.NewPool(1, src, worker.ProcessorFunc(func(context.Context, queue.Job) error {
				calls.Add(1)
				return nil
			}), worker.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10))))
			pool.Start(ctx)

			src.ch <- newJob(t, "dup")
			src.ch <- newJob(t, "dup")

			convey.So(eventually(func() bool { a, _ := src.counts(); return a == 2 }), convey.ShouldBeTrue)
			convey.So(calls.Load(), convey.ShouldEqual, 1)
			convey.So(pool.Stats().Duplicate, convey.ShouldEqual, 1)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("A redelivery of a running job is left for that job to settle", func() {
			release := make(chan struct{})
			var calls atomic.Int64
			pool := worker.NewPool(2, src, worker.ProcessorFunc(func(context.Context, queue.Job) error {
				calls.Add(1)
				<-release
				return nil
			}))
			pool.Start(ctx)

			src.ch <- newJob(t, "slow")
			convey.So(eventually(func() bool { return calls.Load() == 1 }), convey.ShouldBeTrue)
			src.ch <- newJob(t, "slow")
			convey.So(eventually(func() bool { return pool.Stats().Duplicate == 1 }), convey.ShouldBeTrue)

			acked, nacked := src.counts()
			convey.So(acked, convey.ShouldEqual, 0)
			convey.So(nacked, convey.ShouldEqual, 0)

			close(release)
			convey.So(eventually(func() bool { a, _ := src.counts(); return a == 1 }), convey.ShouldBeTrue)
			convey.So(calls.Load(), convey.ShouldEqual, 1)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("A permanent failure is acked, not retried", func() {
			pool := worker.NewPool(1, src, worker.ProcessorFunc(func(context.Context, queue.Job) error {
				return worker.Permanent(errors.New("bad payload"))
			}))
			pool.Start(ctx)
			src.ch <- newJob(t, "bad")

			convey.So(eventually(func() bool { a, _ := src.counts(); return a == 1 }), convey.ShouldBeTrue)
			_, nacked := src.counts()
			convey.So(nacked, convey.ShouldEqual, 0)
			convey.So(pool.Stats().Dropped, convey.ShouldEqual, 1)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("A panicking processor nacks the job", func() {
			pool := worker.NewPool(1, src, worker.ProcessorFunc(func(context.Context, queue.Job) error {
				panic("boom")
			}))
			pool.Start(ctx)
			src.ch <- newJob(t, "panic")

			convey.So(eventually(func() bool { _, n := src.counts(); return n == 1 }), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})

		convey.Convey("Shutdown before Start is a no-op", func() {
			pool := worker.NewPool(0, src, worker.ProcessorFunc(func(context.Context, queue.Job) error { return nil }))
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Permanent(nil) stays nil", t, func() {
		convey.So(worker.Permanent(nil), convey.ShouldBeNil)
		convey.So(worker.IsPermanent(fmt.Errorf("wrap: %w", worker.Permanent(errors.New("x")))), convey.ShouldBeTrue)
	})
}
