package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func job(t *testing.T, id string) Job {
	t.Helper()
	j, err := NewJob(id, "usage.insert", map[string]string{"id": id})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func receive(ch <-chan Job, timeout time.Duration) (Job, bool) {
	select {
	case j, ok := <-ch:
		return j, ok
	case <-time.After(timeout):
		return Job{}, false
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given an in-memory queue with capacity 2", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := NewInMemoryQueue(WithCapacity(2), WithMaxAttempts(2))
		defer q.Close()

		So(q.Len(ctx), ShouldEqual, 0)

		Convey("Enqueue rejects an empty id", func() {
			So(q.Enqueue(ctx, Job{}), ShouldEqual, ErrEmptyJobID)
		})

		Convey("Enqueue fails with ErrQueueFull past capacity", func() {
			So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
			So(q.Enqueue(ctx, job(t, "b")), ShouldBeNil)
			So(q.Enqueue(ctx, job(t, "c")), ShouldEqual, ErrQueueFull)
			So(q.Len(ctx), ShouldEqual, 2)
		})

		Convey("A delivered job counts until it is acked", func() {
			So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
			j, ok := receive(q.Dequeue(ctx), time.Second)
			So(ok, ShouldBeTrue)
			So(j.ID, ShouldEqual, "a")

			var payload map[string]string
			So(j.Decode(&payload), ShouldBeNil)
			So(payload["id"], ShouldEqual, "a")

			So(q.Len(ctx), ShouldEqual, 1)
			So(q.Ack(ctx, "a"), ShouldBeNil)
			So(q.Len(ctx), ShouldEqual, 0)
			So(q.Ack(ctx, "a"), ShouldEqual, ErrJobNotFound)
		})

		Convey("A nacked job is redelivered until attempts run out", func() {
			var deadIDs []string
			q.OnDeadLetter(func(_ context.Context, j Job, _ error) { deadIDs = append(deadIDs, j.ID) })
			So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
			ch := q.Dequeue(ctx)

			first, ok := receive(ch, time.Second)
			So(ok, ShouldBeTrue)
			So(q.Nack(ctx, first.ID, errors.New("boom")), ShouldBeNil)

			second, ok := receive(ch, time.Second)
			So(ok, ShouldBeTrue)
			So(second.ID, ShouldEqual, "a")
			So(second.Attempts, ShouldEqual, 1)

			So(deadIDs, ShouldBeEmpty)
			So(q.Nack(ctx, second.ID, errors.New("boom")), ShouldBeNil)
			_, ok = receive(ch, 100*time.Millisecond)
			So(ok, ShouldBeFalse)
			So(q.Len(ctx), ShouldEqual, 0)
			So(deadIDs, ShouldResemble, []string{"a"})
		})

		Convey("Close rejects new jobs and closes deliveries", func() {
			ch := q.Dequeue(ctx)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, job(t, "a")), ShouldEqual, ErrQueueClosed)
			_, ok := receive(ch, time.Second)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given many producers and consumers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := NewInMemoryQueue(WithCapacity(1000))
		defer q.Close()

		const producers, perProducer = 10, 50
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					_ = q.Enqueue(ctx, job(t, fmt.Sprintf("%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()

		var mu sync.Mutex
		seen := make(map[string]bool)
		var consumers sync.WaitGroup
		for c := 0; c < 4; c++ {
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				ch := q.Dequeue(ctx)
				for {
					j, ok := receive(ch, 200*time.Millisecond)
					if !ok {
						return
					}
					mu.Lock()
					seen[j.ID] = true
					mu.Unlock()
					_ = q.Ack(ctx, j.ID)
				}
			}()
		}
		consumers.Wait()

		So(len(seen), ShouldEqual, producers*perProducer)
		So(q.Len(ctx), ShouldEqual, 0)
	})
}

func TestBadgerQueue(t *testing.T) {
	Convey("Given a badger queue", t, func() {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q, err := OpenBadgerQueue(dir,
			WithCapacity(3),
			WithMaxAttempts(2),
			WithSyncWrites(false),
			WithPollInterval(20*time.Millisecond),
			WithLease(time.Minute),
		)
		So(err, ShouldBeNil)
		defer q.Close()

		Convey("Jobs are delivered in enqueue order", func() {
			for _, id := range []string{"01a", "01b", "01c"} {
				So(q.Enqueue(ctx, job(t, id)), ShouldBeNil)
			}
			So(q.Enqueue(ctx, job(t, "01d")), ShouldEqual, ErrQueueFull)
			So(q.Len(ctx), ShouldEqual, 3)

			ch := q.Dequeue(ctx)
			for _, want := range []string{"01a", "01b", "01c"} {
				j, ok := receive(ch, time.Second)
				So(ok, ShouldBeTrue)
				So(j.ID, ShouldEqual, want)
				So(q.Ack(ctx, j.ID), ShouldBeNil)
			}
			So(q.Len(ctx), ShouldEqual, 0)
		})

		Convey("A leased job is not delivered twice", func() {
			So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
			ch := q.Dequeue(ctx)
			_, ok := receive(ch, time.Second)
			So(ok, ShouldBeTrue)
			_, ok = receive(ch, 100*time.Millisecond)
			So(ok, ShouldBeFalse)
		})

		Convey("Nack redelivers and then moves the job to the dead set", func() {
			var deadJobs []Job
			q.OnDeadLetter(func(_ context.Context, j Job, _ error) { deadJobs = append(deadJobs, j) })
			So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
			ch := q.Dequeue(ctx)

			j, ok := receive(ch, time.Second)
			So(ok, ShouldBeTrue)
			So(q.Nack(ctx, j.ID, errors.New("boom")), ShouldBeNil)

			j, ok = receive(ch, time.Second)
			So(ok, ShouldBeTrue)
			So(j.Attempts, ShouldEqual, 1)
			So(q.Nack(ctx, j.ID, errors.New("boom")), ShouldBeNil)

			So(q.Len(ctx), ShouldEqual, 0)
			dead, err := q.Dead(ctx)
			So(err, ShouldBeNil)
			So(dead, ShouldHaveLength, 1)
			So(dead[0].ID, ShouldEqual, "a")
			So(deadJobs, ShouldHaveLength, 1)
			So(deadJobs[0].ID, ShouldEqual, "a")
			So(deadJobs[0].Attempts, ShouldEqual, 2)
			So(q.Nack(ctx, "a", nil), ShouldEqual, ErrJobNotFound)
		})

		Convey("Close makes Enqueue fail", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Enqueue(ctx, job(t, "a")), ShouldEqual, ErrQueueClosed)
			So(q.Close(), ShouldBeNil)
		})
	})

	Convey("Given a queue reopened after an unclean stop", t, func() {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q, err := OpenBadgerQueue(dir, WithSyncWrites(false), WithLease(time.Hour))
		So(err, ShouldBeNil)
		So(q.Enqueue(ctx, job(t, "a")), ShouldBeNil)
		So(q.Enqueue(ctx, job(t, "b")), ShouldBeNil)

		j, ok := receive(q.Dequeue(ctx), time.Second)
		So(ok, ShouldBeTrue)
		So(j.ID, ShouldEqual, "a")
		So(q.Close(), ShouldBeNil)

		reopened, err := OpenBadgerQueue(dir, WithSyncWrites(false), WithLease(time.Hour))
		So(err, ShouldBeNil)
		defer reopened.Close()

		Convey("Unacked jobs survive and leased ones are released", func() {
			So(reopened.Len(ctx), ShouldEqual, 2)
			ch := reopened.Dequeue(ctx)
			got := []string{}
			for i := 0; i < 2; i++ {
				j, ok := receive(ch, time.Second)
				So(ok, ShouldBeTrue)
				got = append(got, j.ID)
			}
			So(got, ShouldResemble, []string{"a", "b"})
		})
	})

	Convey("OpenBadgerQueue requires a path", t, func() {
		_, err := OpenBadgerQueue("")
		So(errors.Is(err, ErrInvalidQueue), ShouldBeTrue)
	})
}
