// Package dedupe provides an advisory fast-path duplicate check backed by
// Redis. The canonical store's uniqueness constraint stays authoritative;
// this cache only short-circuits redelivery storms before they reach
// Postgres. Any Redis failure degrades to "not seen".
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "tidemark/pkg/domain"
)

// defaultTTL bounds how long a (tenant, key) hint is remembered. Redeliveries
// beyond the window fall through to the store and still collapse there.
const defaultTTL = 24 * time.Hour

// Cache marks (tenant, idempotency key) pairs whose canonical row is known
// to exist. A hint is only ever written after the store reported success or
// a uniqueness conflict, so a hit can safely be reported as Duplicate.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

// Seen reports whether a canonical row for the pair is known to exist.
func (c *Cache) Seen(ctx context.Context, tenantID id.TenantID, key string) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, c.redisKey(tenantID, key)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkSeen records the pair after the store confirmed the row exists.
func (c *Cache) MarkSeen(ctx context.Context, tenantID id.TenantID, key string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, c.redisKey(tenantID, key), 1, c.ttl).Err()
}

func (c *Cache) redisKey(tenantID id.TenantID, key string) string {
	return fmt.Sprintf("ingest:seen:%s:%s", tenantID.String(), key)
}
