package geocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// cache keys round coordinates to 4 decimal places (~11m)
const cacheKeyPrecision = "%.4f:%.4f"

// noAddressSentinel marks cached "no address found" results.
const noAddressSentinel = "\x00none"

// CachedProvider wraps a Provider with a Redis cache for reverse lookups.
// Forward searches pass through untouched. A nil Redis client degrades to
// live calls.
type CachedProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
}

// WithReverseCache decorates p with reverse-lookup caching.
func WithReverseCache(p Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: p, rdb: rdb, ttl: ttl}
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) ForwardSearch(ctx context.Context, query, regionHint string) ([]Candidate, error) {
	return c.inner.ForwardSearch(ctx, query, regionHint)
}

func (c *CachedProvider) ReverseLookup(ctx context.Context, coord Coordinate) (string, error) {
	key := fmt.Sprintf("geocode:rev:%s:"+cacheKeyPrecision, c.inner.Name(), coord.Lat, coord.Lng)

	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			if cached == noAddressSentinel {
				return "", ErrNoAddress
			}
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("provider", c.inner.Name()).Msg("reverse cache read failed")
		}
	}

	address, err := c.inner.ReverseLookup(ctx, coord)
	if err != nil && !errors.Is(err, ErrNoAddress) {
		return "", err
	}

	if c.rdb != nil {
		value := address
		if errors.Is(err, ErrNoAddress) {
			value = noAddressSentinel
		}
		if setErr := c.rdb.Set(ctx, key, value, c.ttl).Err(); setErr != nil {
			log.Warn().Err(setErr).Str("provider", c.inner.Name()).Msg("reverse cache write failed")
		}
	}

	return address, err
}
