package cache

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/okian/arcade/pkg/logger"
)

// Remember returns the cached value for key, or calls load, caches its
// result and returns it. Load errors are returned as is and nothing is
// cached. A nil cache always loads.
func Remember[T any](ctx context.Context, c *Cache, ns, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	if payload, ok := c.Get(ctx, ns, key); ok {
		var v T
		err := json.Unmarshal(payload, &v)
		if err == nil {
			return v, nil
		}
		c.log.Warn(ctx, "ignoring undecodable cache entry", logger.String("namespace", ns), logger.Error(err))
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Warn(ctx, "cannot encode value for cache", logger.String("namespace", ns), logger.Error(err))
		return v, nil
	}
	c.Set(ctx, ns, key, payload, 0)
	return v, nil
}
