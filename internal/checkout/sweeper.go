package checkout

import (
	"context"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"go.uber.org/zap"
)

// Sweeper expires pending orders the provider never confirmed.
type Sweeper struct {
	Pending  PendingOrders
	Events   Publisher
	Log      *zap.Logger
	TTL      time.Duration
	Interval time.Duration

	ServiceName string
	Now         func() time.Time
}

// Run sweeps every Interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.Log.Warn("pending sweep", zap.Error(err))
			}
		}
	}
}

// Sweep removes pending orders older than TTL and reports how many it
// expired. Orders confirmed in the meantime are already gone and are
// not counted.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now().UTC()
	}
	ids, err := w.Pending.Expired(ctx, now.Add(-w.TTL))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		removed, err := w.Pending.Delete(ctx, id)
		if err != nil {
			w.Log.Warn("expire pending order", zap.String("transaction_id", id), zap.Error(err))
			continue
		}
		if !removed {
			continue
		}
		n++
		publish(ctx, w.Events, w.ServiceName, now, orders.TopicPendingExpired, orders.EventPendingOrderExpired, id,
			orders.PendingOrderExpiredPayload{TransactionID: id, State: orders.StateExpired})
		w.Log.Info("pending order expired", zap.String("transaction_id", id), zap.String("state", string(orders.StateExpired)))
	}
	if n > 0 {
		metrics.RecordExpired(n)
	}
	return n, nil
}
