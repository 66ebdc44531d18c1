package references

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "papertrail:ref"

// CachedLookup memoises master-data lookups in Redis. Challans are never cached since
// they are documents with their own lifecycle, and misses are never stored.
type CachedLookup struct {
	next   Lookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedLookup wraps next with a Redis cache.
func NewCachedLookup(next Lookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLookup{next: next, client: client, ttl: ttl, logger: logger}
}

// Find implements Lookup.
func (c *CachedLookup) Find(ctx context.Context, kind Kind, id uuid.UUID) (Entity, error) {
	if c.client == nil || kind == KindChallan {
		return c.next.Find(ctx, kind, id)
	}
	key := cacheKey(kind, id)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entity Entity
		if jsonErr := json.Unmarshal(raw, &entity); jsonErr == nil {
			return entity, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("reference cache get", slog.String("key", key), slog.Any("error", err))
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		entity, err := c.next.Find(ctx, kind, id)
		if err != nil {
			return Entity{}, err
		}
		if body, err := json.Marshal(entity); err == nil {
			if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
				c.logger.Warn("reference cache set", slog.String("key", key), slog.Any("error", err))
			}
		}
		return entity, nil
	})
	if err != nil {
		return Entity{}, err
	}
	return value.(Entity), nil
}

// Invalidate drops a cached entity after master data changes.
func (c *CachedLookup) Invalidate(ctx context.Context, kind Kind, id uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(kind, id)).Err()
}

func cacheKey(kind Kind, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", cachePrefix, kind, id)
}
