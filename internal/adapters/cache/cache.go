// Package cache is a cache-aside layer for read-heavy query results.
//
// Keys live under a namespace (one per resource type). Writers invalidate
// a whole namespace after committing, because one write can change many
// cached query shapes. Backend failures degrade to a miss and never reach
// the caller.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

// Cache tracks which keys were written under each namespace so that
// invalidation never scans the whole backend.
type Cache struct {
	backend Backend
	ttl     TTLPolicy
	log     logger.Logger

	mu    sync.Mutex
	index map[string]map[string]struct{}
}

// New creates a cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     DefaultTTLPolicy(),
		log:     logger.Get().Named("cache"),
		index:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if h, ok := backend.(interface{ OnEvict(func(string)) }); ok {
		h.OnEvict(c.forget)
	}
	return c
}

// NewLRU is shorthand for a Cache over an LRUBackend sized to capacity.
func NewLRU(capacity int, opts ...Option) *Cache {
	c := New(nil, opts...)
	b := NewLRUBackend(capacity, c.ttl.Max())
	c.backend = b
	b.OnEvict(c.forget)
	return c
}

// Key builds a deterministic key: ns:name:value[:name:value], sorted by name.
func Key(ns string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(ns)
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(params[name])
	}
	return b.String()
}

func fullKey(ns, key string) string {
	if key == ns || strings.HasPrefix(key, ns+":") {
		return key
	}
	return ns + ":" + key
}

// TTL returns the policy TTL for ns.
func (c *Cache) TTL(ns string) time.Duration { return c.ttl.For(ns) }

// Get returns the payload stored under key, or false on a miss.
func (c *Cache) Get(ctx context.Context, ns, key string) ([]byte, bool) {
	payload, ok, err := c.backend.Get(ctx, fullKey(ns, key))
	if err != nil {
		metrics.RecordCacheBackendError("get")
		c.log.Warn(ctx, "cache read failed", logger.String("namespace", ns), logger.Error(err))
		ok = false
	}
	if !ok {
		metrics.RecordCacheMiss(ns)
		return nil, false
	}
	metrics.RecordCacheHit(ns)
	return payload, true
}

// Set stores payload under key. A non-positive ttl uses the namespace
// policy.
func (c *Cache) Set(ctx context.Context, ns, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl.For(ns)
	}
	k := fullKey(ns, key)
	if err := c.backend.Set(ctx, k, payload, ttl); err != nil {
		metrics.RecordCacheBackendError("set")
		c.log.Warn(ctx, "cache write failed", logger.String("namespace", ns), logger.Error(err))
		return
	}

	c.mu.Lock()
	keys, ok := c.index[ns]
	if !ok {
		keys = make(map[string]struct{})
		c.index[ns] = keys
	}
	keys[k] = struct{}{}
	c.mu.Unlock()

	metrics.RecordCacheSet(ns)
	metrics.UpdateCacheEntries(c.backend.Len())
}

// Invalidate removes every key in the namespaces matched by pattern and
// returns how many keys were dropped. "ns" and "ns:*" match one namespace,
// "prefix*" matches namespaces by prefix and "*" matches all.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	match := matcher(pattern)

	c.mu.Lock()
	byNS := make(map[string][]string)
	for ns, keys := range c.index {
		if !match(ns) {
			continue
		}
		for k := range keys {
			byNS[ns] = append(byNS[ns], k)
		}
		delete(c.index, ns)
	}
	c.mu.Unlock()

	total := 0
	for ns, keys := range byNS {
		if err := c.backend.Delete(ctx, keys...); err != nil {
			metrics.RecordCacheBackendError("delete")
			c.log.Warn(ctx, "cache invalidation failed", logger.String("namespace", ns), logger.Error(err))
			continue
		}
		metrics.RecordCacheInvalidation(ns, len(keys))
		total += len(keys)
	}
	if total > 0 {
		c.log.Debug(ctx, "cache invalidated", logger.String("pattern", pattern), logger.Int("keys", total))
	}
	metrics.UpdateCacheEntries(c.backend.Len())
	return total
}

// Len returns the number of entries held by the backend.
func (c *Cache) Len() int { return c.backend.Len() }

// forget drops an evicted key from the index.
func (c *Cache) forget(key string) {
	ns, _, _ := strings.Cut(key, ":")
	c.mu.Lock()
	if keys, ok := c.index[ns]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.index, ns)
		}
	}
	c.mu.Unlock()
}

func matcher(pattern string) func(ns string) bool {
	switch {
	case pattern == "*" || pattern == "":
		return func(string) bool { return true }
	case strings.HasSuffix(pattern, ":*"):
		ns := strings.TrimSuffix(pattern, ":*")
		return func(s string) bool { return s == ns }
	case strings.HasSuffix(pattern, "*"):
		prefix := strings.TrimSuffix(pattern, "*")
		return func(s string) bool { return strings.HasPrefix(s, prefix) }
	default:
		return func(s string) bool { return s == pattern }
	}
}
