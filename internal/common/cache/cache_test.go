package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient failed: %v", err)
	}
	return cache, mr
}

func TestGetMissingKeyIsEmpty(t *testing.T) {
	cache, _ := newTestCache(t)
	val, err := cache.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "" {
		t.Fatalf("val = %q, want empty", val)
	}
}

func TestSetGetDel(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := cache.Get(ctx, "k")
	if err != nil || val != "v" {
		t.Fatalf("Get = %q, %v, want \"v\"", val, err)
	}
	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if val, _ := cache.Get(ctx, "k"); val != "" {
		t.Fatalf("val after Del = %q, want empty", val)
	}
}

func TestGetWithCachedFallsThroughOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0

	fetch := func(context.Context) (string, error) {
		calls++
		return "built", nil
	}
	id := func(s string) string { return s }
	parse := func(s string) (string, error) { return s, nil }
	empty := func(s string) bool { return s == "" }

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, cache, "board", time.Minute, time.Second, empty, id, parse, fetch)
		if err != nil {
			t.Fatalf("GetWithCached failed: %v", err)
		}
		if got != "built" {
			t.Fatalf("got %q, want built", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch ran %d times, want 1", calls)
	}
}

func TestGetWithCachedCachesEmptiness(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0

	fetch := func(context.Context) (string, error) {
		calls++
		return "", nil
	}
	id := func(s string) string { return s }
	parse := func(s string) (string, error) { return s, nil }
	empty := func(s string) bool { return s == "" }

	for i := 0; i < 2; i++ {
		if _, err := GetWithCached(ctx, cache, "missing", time.Minute, time.Second, empty, id, parse, fetch); err != nil {
			t.Fatalf("GetWithCached failed: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch ran %d times, want 1 (null value cached)", calls)
	}
	if got, _ := mr.Get("missing"); got != NullCacheValue {
		t.Fatalf("cached value = %q, want null marker", got)
	}
}

func TestUpdateCachedInvalidates(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set("k", "stale")
	err := UpdateCached(ctx, cache, "k", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("UpdateCached failed: %v", err)
	}
	if mr.Exists("k") {
		t.Fatal("key should be invalidated after update")
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := time.Minute
	for i := 0; i < 100; i++ {
		got := JitterTTL(ttl)
		if got < ttl || got > ttl+ttl/10 {
			t.Fatalf("jittered ttl %v outside [%v, %v]", got, ttl, ttl+ttl/10)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatal("zero ttl must pass through")
	}
}
