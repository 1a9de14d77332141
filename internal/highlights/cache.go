package highlights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	feedCacheKey   = "highlights:approved:v1"
	feedVersionKey = "highlights:approved:version"
)

// ErrStaleFeed is returned by Set when the cache was invalidated after the
// caller read its version; the list it holds predates that invalidation.
var ErrStaleFeed = errors.New("feed cache invalidated since read")

// FeedCache holds the approved highlight list served to public viewers.
// Visibility is always re-evaluated after a read, so a cached entry may
// safely outlive the expiry of items inside it.
//
// Every Invalidate bumps a version. A reader takes the Version before
// loading from the repository and passes it to Set, which refuses the
// write if an invalidation happened in between.
type FeedCache interface {
	Get(ctx context.Context) ([]*Item, bool, error)
	Version(ctx context.Context) (int64, error)
	Set(ctx context.Context, version int64, items []*Item) error
	Invalidate(ctx context.Context) error
}

type RedisFeedCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFeedCache(client *redis.Client, ttl time.Duration) FeedCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisFeedCache{client: client, ttl: ttl}
}

func (c *RedisFeedCache) Get(ctx context.Context) ([]*Item, bool, error) {
	data, err := c.client.Get(ctx, feedCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read feed cache: %w", err)
	}

	var items []*Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("failed to decode feed cache: %w", err)
	}
	return items, true, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, r stringGetter) (int64, error) {
	version, err := r.Get(ctx, feedVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

func (c *RedisFeedCache) Version(ctx context.Context) (int64, error) {
	version, err := readVersion(ctx, c.client)
	if err != nil {
		return 0, fmt.Errorf("failed to read feed cache version: %w", err)
	}
	return version, nil
}

// Set stores items only while the version is still the one the caller read
func (c *RedisFeedCache) Set(ctx context.Context, version int64, items []*Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode feed cache: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStaleFeed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, feedCacheKey, data, c.ttl)
			return nil
		})
		return err
	}, feedVersionKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleFeed), errors.Is(err, redis.TxFailedErr):
		return ErrStaleFeed
	default:
		return fmt.Errorf("failed to write feed cache: %w", err)
	}
}

func (c *RedisFeedCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, feedVersionKey)
		pipe.Del(ctx, feedCacheKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate feed cache: %w", err)
	}
	return nil
}

// NopFeedCache is used when Redis is not configured
type NopFeedCache struct{}

func (NopFeedCache) Get(context.Context) ([]*Item, bool, error) { return nil, false, nil }
func (NopFeedCache) Version(context.Context) (int64, error)     { return 0, nil }
func (NopFeedCache) Set(context.Context, int64, []*Item) error  { return nil }
func (NopFeedCache) Invalidate(context.Context) error           { return nil }
