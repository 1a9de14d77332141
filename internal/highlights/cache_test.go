package highlights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisFeedCacheRoundTrip(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	cache := NewRedisFeedCache(client, time.Minute)
	ctx := context.Background()

	if _, hit, err := cache.Get(ctx); err != nil || hit {
		t.Fatalf("expected empty cache, hit=%v err=%v", hit, err)
	}

	items := []*Item{newItem("a", "u1", 0, StatusApproved), newItem("b", "u2", time.Minute, StatusApproved)}
	if err := cache.Set(ctx, 0, items); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, hit, err := cache.Get(ctx)
	if err != nil || !hit {
		t.Fatalf("expected hit, hit=%v err=%v", hit, err)
	}
	if len(got) != 2 || got[1].ID != "b" || !got[0].ExpiresAt.Equal(items[0].ExpiresAt) {
		t.Fatalf("unexpected cached items: %v", ids(got))
	}

	mr.FastForward(2 * time.Minute)
	if _, hit, _ := cache.Get(ctx); hit {
		t.Fatalf("expected entry to expire with ttl")
	}
}

func TestRedisFeedCacheInvalidate(t *testing.T) {
	_, client := newMiniRedisClient(t)
	cache := NewRedisFeedCache(client, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, 0, []*Item{newItem("a", "u1", 0, StatusApproved)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, hit, _ := cache.Get(ctx); hit {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestRedisFeedCacheRejectsStaleVersion(t *testing.T) {
	_, client := newMiniRedisClient(t)
	cache := NewRedisFeedCache(client, time.Minute)
	ctx := context.Background()

	before, err := cache.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	after, err := cache.Version(ctx)
	if err != nil || after == before {
		t.Fatalf("invalidate must bump the version, before=%d after=%d err=%v", before, after, err)
	}

	stale := []*Item{newItem("gone", "u1", 0, StatusApproved)}
	if err := cache.Set(ctx, before, stale); !errors.Is(err, ErrStaleFeed) {
		t.Fatalf("expected ErrStaleFeed, got %v", err)
	}
	if _, hit, _ := cache.Get(ctx); hit {
		t.Fatalf("stale write must not be stored")
	}

	if err := cache.Set(ctx, after, stale); err != nil {
		t.Fatalf("set with current version: %v", err)
	}
	if _, hit, _ := cache.Get(ctx); !hit {
		t.Fatalf("expected hit after current-version write")
	}
}

func TestRedisFeedCacheCorruptEntry(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	cache := NewRedisFeedCache(client, time.Minute)

	if err := mr.Set(feedCacheKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, hit, err := cache.Get(context.Background()); err == nil || hit {
		t.Fatalf("expected decode error, hit=%v err=%v", hit, err)
	}
}
