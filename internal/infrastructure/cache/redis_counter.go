package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "docflow:numbering:"

// RedisCounterStore implements numbering.CounterStore with INCR. Series
// metadata lives in a hash next to the counter.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a store on an existing client. The caller owns the client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

var _ numbering.CounterStore = (*RedisCounterStore)(nil)

func counterKey(k numbering.Key) string {
	return counterKeyPrefix + k.String()
}

func metaKey(k numbering.Key) string {
	return counterKeyPrefix + k.String() + ":meta"
}

// Increment records the series metadata on first use and increments the counter
func (s *RedisCounterStore) Increment(ctx context.Context, key numbering.Key, prefix string, width int) (int64, error) {
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, metaKey(key), "prefix", prefix)
	pipe.HSetNX(ctx, metaKey(key), "width", width)
	incr := pipe.Incr(ctx, counterKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", numbering.ErrCounterPersistence, key, err)
	}
	return incr.Val(), nil
}

// Get returns the series, found=false if the counter key does not exist
func (s *RedisCounterStore) Get(ctx context.Context, key numbering.Key) (numbering.Series, bool, error) {
	counter, err := s.client.Get(ctx, counterKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return numbering.Series{}, false, nil
	}
	if err != nil {
		return numbering.Series{}, false, err
	}
	meta, err := s.client.HGetAll(ctx, metaKey(key)).Result()
	if err != nil {
		return numbering.Series{}, false, err
	}
	width, err := strconv.Atoi(meta["width"])
	if err != nil {
		width = numbering.DefaultWidth
	}
	return numbering.Series{Key: key, Prefix: meta["prefix"], Counter: counter, Width: width}, true, nil
}

// Reset overwrites an existing counter
func (s *RedisCounterStore) Reset(ctx context.Context, key numbering.Key, value int64) error {
	ok, err := s.client.SetXX(ctx, counterKey(key), value, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}
