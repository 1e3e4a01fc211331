// Package cache provides the get-or-compute cache handed to components that
// reuse expensive lookups. Values are stored as JSON bytes so the memory and
// Redis backends are interchangeable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is a byte store with per-key expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Observer is notified of lookups made through GetOrCompute.
type Observer interface {
	CacheLookup(hit bool)
}

// GetOrCompute returns the cached value for key or calls compute and stores
// its result for ttl. Compute errors are not cached. A failing cache only
// costs a recompute; it never fails the call.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	return GetOrComputeObserved(ctx, c, nil, key, ttl, compute)
}

// GetOrComputeObserved is GetOrCompute with hit/miss reporting.
func GetOrComputeObserved[T any](ctx context.Context, c Cache, obs Observer, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return compute(ctx)
	}

	data, ok, err := c.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	if ok {
		var cached T
		if err := json.Unmarshal(data, &cached); err == nil {
			if obs != nil {
				obs.CacheLookup(true)
			}
			return cached, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	}
	if obs != nil {
		obs.CacheLookup(false)
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encode cache value: %w", err)
	}
	if err := c.Set(ctx, key, encoded, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return value, nil
}
