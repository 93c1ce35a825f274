// Package dedupe guards against concurrent duplicate deliveries of the same job.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Status is what a Deduper knows about a job id.
type Status int

const (
	// StatusNew means the id was not tracked. Claim has recorded it as in flight.
	StatusNew Status = iota
	// StatusInFlight means another delivery of the id is being processed.
	StatusInFlight
	// StatusDone means the id was processed and completed recently.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInFlight:
		return "in_flight"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Deduper tracks job ids that are currently being processed or were
// processed recently.
type Deduper interface {
	// Claim atomically reports the status of id and records it as in flight
	// when it was not tracked.
	Claim(ctx context.Context, id string) Status

	// Complete marks a claimed id as processed. Later deliveries report
	// StatusDone until the id is evicted.
	Complete(ctx context.Context, id string)

	// SeenAndRecord is Claim reduced to a bool: true unless the id was new.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so that a redelivery of the job is processed again.
	// Used when processing failed and the job was nacked.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in a map plus a FIFO ring of insertion order.
// When bounded, the oldest id is evicted once the ring is full.
// With maxSize <= 0 nothing is ever evicted.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]record
	ring    []entry
	next    int
	seq     uint64
	maxSize int
	size    atomic.Int64
}

type record struct {
	seq  uint64
	done bool
}

type entry struct {
	id  string
	seq uint64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]record)
	if d.maxSize > 0 {
		d.ring = make([]entry, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, id string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.seen[id]; ok {
		if r.done {
			return StatusDone
		}
		return StatusInFlight
	}

	d.seq++
	d.seen[id] = record{seq: d.seq}

	if d.maxSize > 0 {
		old := d.ring[d.next]
		// Only evict when the slot still owns the id. Unrecord may have
		// removed it, and a later Claim may have re-added it under
		// a newer sequence.
		if old.id != "" || old.seq != 0 {
			if r, ok := d.seen[old.id]; ok && r.seq == old.seq {
				delete(d.seen, old.id)
			}
		}
		d.ring[d.next] = entry{id: id, seq: d.seq}
		d.next = (d.next + 1) % d.maxSize
	}

	d.size.Store(int64(len(d.seen)))
	return StatusNew
}

func (d *inMemoryDeduper) Complete(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.seen[id]; ok {
		r.done = true
		d.seen[id] = r
	}
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	return d.Claim(ctx, id) != StatusNew
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, id)
	d.size.Store(int64(len(d.seen)))
}

// Size returns the number of ids currently tracked.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
