// Package cache defines the small cache surface used for leaderboard
// and submission status reads. The cache is an optimization only; the
// submission set remains the source of truth.
package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Cache is the unified interface for cache operations.
type Cache interface {
	// Get retrieves the value for the given key. A missing key yields
	// an empty string and no error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL (0 = no expiry).
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error

	// Ping verifies the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// NullCacheValue marks cached absence of data, preventing repeated
// fallthrough lookups for keys known to be empty.
const NullCacheValue = "$NULL$"

// GetWithCached implements the cache-aside pattern with null value
// caching. Cache miss falls through to fn and stores the result; empty
// results are cached under NullCacheValue with the shorter emptyTTL.
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}

	_ = cache.Set(ctx, key, marshal(data), ttl)
	return data, nil
}

// UpdateCached runs a write and invalidates the cache key afterwards.
func UpdateCached(
	ctx context.Context,
	cache Cache,
	key string,
	fn func(context.Context) error,
) error {
	if err := fn(ctx); err != nil {
		return err
	}
	_ = cache.Del(ctx, key)
	return nil
}

// JitterTTL spreads expirations by up to 10% to avoid synchronized
// cache stampedes.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	max := int64(ttl) / 10
	if max <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return ttl
	}
	return ttl + time.Duration(n.Int64())
}
