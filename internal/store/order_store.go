package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/engine"
)

// OrderStore persists each participant's session order as a Redis list.
type OrderStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderStore creates an OrderStore.
func NewOrderStore(rdb *redis.Client, ttl time.Duration) *OrderStore {
	return &OrderStore{rdb: rdb, ttl: ttl}
}

// Save replaces the stored order.
func (s *OrderStore) Save(ctx context.Context, runID string, order engine.Order) error {
	key := config.CacheKey.SessionOrderKey(runID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(order) > 0 {
		vals := make([]any, len(order))
		for i, id := range order {
			vals[i] = id
		}
		pipe.RPush(ctx, key, vals...)
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Load returns the stored order, or an empty order when none exists.
func (s *OrderStore) Load(ctx context.Context, runID string) (engine.Order, error) {
	vals, err := s.rdb.LRange(ctx, config.CacheKey.SessionOrderKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	order := make(engine.Order, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt order entry %q: %w", v, err)
		}
		order = append(order, id)
	}
	return order, nil
}

// Clear deletes the stored order.
func (s *OrderStore) Clear(ctx context.Context, runID string) error {
	return s.rdb.Del(ctx, config.CacheKey.SessionOrderKey(runID)).Err()
}
