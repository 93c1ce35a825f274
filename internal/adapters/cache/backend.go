package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Backend stores opaque payloads by full key. Errors are reported to the
// Cache, which absorbs them.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Len() int
}

type lruItem struct {
	payload   []byte
	expiresAt time.Time
}

// LRUBackend is a bounded in-process Backend. The LRU's own TTL is a
// ceiling; each entry also carries its own expiry, checked on read.
type LRUBackend struct {
	lru     *expirable.LRU[string, lruItem]
	onEvict atomic.Pointer[func(string)]
	now     func() time.Time
}

// NewLRUBackend creates a backend holding at most capacity entries. maxTTL
// caps every entry's lifetime.
func NewLRUBackend(capacity int, maxTTL time.Duration) *LRUBackend {
	b := &LRUBackend{now: time.Now}
	b.lru = expirable.NewLRU[string, lruItem](capacity, func(key string, _ lruItem) {
		if fn := b.onEvict.Load(); fn != nil {
			(*fn)(key)
		}
	}, maxTTL)
	return b
}

// OnEvict registers fn to be called when an entry leaves the backend for
// any reason. fn must not call back into the backend.
func (b *LRUBackend) OnEvict(fn func(key string)) {
	b.onEvict.Store(&fn)
}

func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	it, ok := b.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(it.expiresAt) {
		b.lru.Remove(key)
		return nil, false, nil
	}
	return it.payload, true, nil
}

func (b *LRUBackend) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	b.lru.Add(key, lruItem{payload: payload, expiresAt: b.now().Add(ttl)})
	return nil
}

func (b *LRUBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		b.lru.Remove(k)
	}
	return nil
}

func (b *LRUBackend) Len() int { return b.lru.Len() }
