package scores

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache TTLs. Slates in progress refresh often; a fully completed fetch is
// stable and can live longer.
const (
	liveTTL      = 5 * time.Minute
	completedTTL = 6 * time.Hour
)

// Cache stores feed responses in Redis so repeated settlement passes do not
// burn feed quota.
type Cache struct {
	rdb *redis.Client
}

// NewCache wraps an existing Redis client.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func cacheKey(sport string, daysFrom int) string {
	return fmt.Sprintf("scores:%s:%d", sport, daysFrom)
}

// Get returns the cached response for a sport, if present.
func (c *Cache) Get(ctx context.Context, sport string, daysFrom int) ([]Score, bool) {
	data, err := c.rdb.Get(ctx, cacheKey(sport, daysFrom)).Bytes()
	if err != nil {
		return nil, false
	}
	var out []Score
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set caches a feed response. The TTL is short while any contest is still
// live.
func (c *Cache) Set(ctx context.Context, sport string, daysFrom int, result []Score) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	ttl := completedTTL
	for _, s := range result {
		if !s.Completed {
			ttl = liveTTL
			break
		}
	}
	if err := c.rdb.Set(ctx, cacheKey(sport, daysFrom), data, ttl).Err(); err != nil {
		log.Printf("[SCORES] cache write failed for %s: %v", sport, err)
	}
}

// CachedProvider layers the Redis cache over a Provider. A cache or
// upstream failure degrades to whatever the other layer can supply.
type CachedProvider struct {
	upstream Provider
	cache    *Cache
}

// NewCachedProvider wraps upstream with the cache. A nil cache passes
// through.
func NewCachedProvider(upstream Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{upstream: upstream, cache: cache}
}

// FetchScores implements Provider.
func (p *CachedProvider) FetchScores(ctx context.Context, sport string, daysFrom int) ([]Score, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, sport, daysFrom); ok {
			return cached, nil
		}
	}
	result, err := p.upstream.FetchScores(ctx, sport, daysFrom)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(ctx, sport, daysFrom, result)
	}
	return result, nil
}
