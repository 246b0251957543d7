package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// PendingStore keeps pending orders in redis keyed by transaction id.
// Expiry is driven by the sweeper through the creation index; the key TTL
// is only a backstop at twice the window.
type PendingStore struct {
	Redis *redis.Client
	TTL   time.Duration
}

func (s *PendingStore) Put(ctx context.Context, p PendingOrder) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending order: %w", err)
	}
	key := fmt.Sprintf(redisx.KeyPendingOrder, p.TransactionID)
	ok, err := s.Redis.SetNX(ctx, key, b, 2*s.TTL).Result()
	if err != nil {
		return fmt.Errorf("put pending order: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, p.TransactionID)
	}
	err = s.Redis.ZAdd(ctx, redisx.KeyPendingIndex, redis.Z{
		Score:  float64(p.CreatedAt.Unix()),
		Member: p.TransactionID,
	}).Err()
	if err != nil {
		_ = s.Redis.Del(ctx, key).Err()
		return fmt.Errorf("index pending order: %w", err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, transactionID string) (PendingOrder, error) {
	var p PendingOrder
	b, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyPendingOrder, transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return p, fmt.Errorf("%w: %s", ErrPendingNotFound, transactionID)
	}
	if err != nil {
		return p, fmt.Errorf("get pending order: %w", err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode pending order: %w", err)
	}
	return p, nil
}

// Delete removes the pending order and reports whether it was still present.
func (s *PendingStore) Delete(ctx context.Context, transactionID string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, fmt.Sprintf(redisx.KeyPendingOrder, transactionID))
		pipe.ZRem(ctx, redisx.KeyPendingIndex, transactionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete pending order: %w", err)
	}
	return del.Val() > 0, nil
}

// Expired lists transaction ids created at or before cutoff.
func (s *PendingStore) Expired(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.Redis.ZRangeByScore(ctx, redisx.KeyPendingIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan pending index: %w", err)
	}
	return ids, nil
}
