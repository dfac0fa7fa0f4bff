package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed event ids for one consumer scope.
type Dedup struct {
	RDB   *redis.Client
	Scope string
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Scope, eventID))
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, d.Scope, eventID), "1", TTLDedup).Err()
}

// Claim marks the event and reports whether this caller was first.
func (d *Dedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Scope, eventID), "1", TTLDedup).Result()
}

// StatusCache caches the small JSON status document served by GET /orders/{id}.
//
// Every write carries the order's updated_at. Invalidate records the newest version it saw in
// a fence key, and Set refuses a document older than the fence, so a reader that loaded the row
// before a webhook landed cannot put the stale document back.
type StatusCache struct{ RDB *redis.Client }

func (c *StatusCache) Get(ctx context.Context, orderID string) ([]byte, bool) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

func fenceOf(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	v, err := tx.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Set stores doc unless an invalidation for a newer version already happened. Losing a race
// with a concurrent invalidation also skips the write.
func (c *StatusCache) Set(ctx context.Context, orderID string, doc []byte, version time.Time) error {
	docKey, fenceKey := fmt.Sprintf(KeyOrderStatus, orderID), fmt.Sprintf(KeyOrderStatusFence, orderID)
	err := c.RDB.Watch(ctx, func(tx *redis.Tx) error {
		fence, err := fenceOf(ctx, tx, fenceKey)
		if err != nil {
			return err
		}
		if version.UnixMicro() < fence {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, doc, TTLStatusCache)
			return nil
		})
		return err
	}, fenceKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate drops the cached document and raises the fence to version.
func (c *StatusCache) Invalidate(ctx context.Context, orderID string, version time.Time) error {
	docKey, fenceKey := fmt.Sprintf(KeyOrderStatus, orderID), fmt.Sprintf(KeyOrderStatusFence, orderID)
	v := version.UnixMicro()
	for i := 0; i < 3; i++ {
		err := c.RDB.Watch(ctx, func(tx *redis.Tx) error {
			fence, err := fenceOf(ctx, tx, fenceKey)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if v > fence {
					pipe.Set(ctx, fenceKey, v, TTLStatusCache)
				}
				pipe.Del(ctx, docKey)
				return nil
			})
			return err
		}, fenceKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	// the fence keeps moving; at least make sure nothing stale is served
	return c.RDB.Del(ctx, docKey).Err()
}

// Idempotency maps a caller-supplied checkout key to the order it created. The orders table
// holds the same mapping under a unique constraint; this is the fast path.
type Idempotency struct{ RDB *redis.Client }

func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemCheckout, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, key, orderID string) error {
	return i.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, key), orderID, TTLIdempotency).Err()
}
