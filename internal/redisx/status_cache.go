package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type CachedStatus struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusCache struct{ rdb *redis.Client }

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb: rdb} }

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID int64) (CachedStatus, bool, error) {
	var cs CachedStatus
	s, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return cs, false, nil
	}
	if err != nil {
		return cs, false, err
	}
	if err := json.Unmarshal([]byte(s), &cs); err != nil {
		return cs, false, err
	}
	return cs, true, nil
}

func (c *StatusCache) Set(ctx context.Context, orderID int64, cs CachedStatus) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// ErrContended is returned when SetIfNewer keeps losing its optimistic
// transaction to concurrent writers.
var ErrContended = errors.New("status cache: too much write contention")

const maxSetIfNewerAttempts = 16

// SetIfNewer writes cs unless the cached entry is more recent. Events can be
// consumed out of order across topics, and concurrently; the compare and the
// write run under WATCH so a late OrderCreated never overwrites PAID. An
// unreadable entry is replaced.
func (c *StatusCache) SetIfNewer(ctx context.Context, orderID int64, cs CachedStatus) error {
	key := fmt.Sprintf(KeyOrderStatus, orderID)
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev CachedStatus
			if json.Unmarshal(cur, &prev) == nil && prev.UpdatedAt.After(cs.UpdatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, TTLStatusCache)
			return nil
		})
		return err
	}

	for i := 0; i < maxSetIfNewerAttempts; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrContended
}
