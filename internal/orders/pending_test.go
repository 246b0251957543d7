package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingStore(t *testing.T) (*PendingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &PendingStore{Redis: rdb, TTL: 30 * time.Minute}, mr
}

func samplePending(txID string, createdAt time.Time) PendingOrder {
	return PendingOrder{
		TransactionID: txID,
		CustomerID:    "u-1",
		CustomerName:  "Asha",
		CustomerEmail: "asha@example.com",
		CartItems: []CartItem{
			{ItemID: "pz-1", Name: "Margherita", Variant: "medium", Qty: 2, Price: decimal.RequireFromString("250")},
		},
		DeliveryAddress: DeliveryAddress{Name: "Asha", Contact: "9999999999", Line1: "12 MG Road"},
		AmountMinor:     50000,
		CreatedAt:       createdAt,
	}
}

func TestPendingStore_PutGetDelete(t *testing.T) {
	s, _ := newPendingStore(t)
	ctx := context.Background()
	p := samplePending("ORD_a", time.Now().UTC())

	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, "ORD_a")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.AmountMinor)
	assert.Equal(t, "u-1", got.CustomerID)
	require.Len(t, got.CartItems, 1)
	assert.True(t, got.CartItems[0].Price.Equal(decimal.NewFromInt(250)))

	removed, err := s.Delete(ctx, "ORD_a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.Get(ctx, "ORD_a")
	assert.ErrorIs(t, err, ErrPendingNotFound)

	removed, err = s.Delete(ctx, "ORD_a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPendingStore_PutRejectsDuplicate(t *testing.T) {
	s, _ := newPendingStore(t)
	ctx := context.Background()
	p := samplePending("ORD_dup", time.Now())

	require.NoError(t, s.Put(ctx, p))
	err := s.Put(ctx, p)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestPendingStore_Expired(t *testing.T) {
	s, _ := newPendingStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, samplePending("ORD_old", now.Add(-45*time.Minute))))
	require.NoError(t, s.Put(ctx, samplePending("ORD_new", now.Add(-time.Minute))))

	ids, err := s.Expired(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD_old"}, ids)
}

func TestPendingStore_KeyBackstopTTL(t *testing.T) {
	s, mr := newPendingStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, samplePending("ORD_ttl", time.Now())))

	mr.FastForward(61 * time.Minute)

	_, err := s.Get(ctx, "ORD_ttl")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}
