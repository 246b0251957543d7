// Package notifier turns order events into customer notifications.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics the notifier consumes.
var Topics = []string{orders.TopicOrderConfirmed, orders.TopicOrderStatusUpdated}

type Notification struct {
	EventID string
	OrderID string
	Email   string
	Subject string
	Body    string
}

// Sink delivers a notification. The default sink logs it.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type LogSink struct{ Log *zap.Logger }

func (s LogSink) Send(_ context.Context, n Notification) error {
	s.Log.Info("customer notification",
		zap.String("event_id", n.EventID),
		zap.String("order_id", n.OrderID),
		zap.String("to", n.Email),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body))
	return nil
}

type Service struct {
	Redis *redis.Client
	Sink  Sink
	Log   *zap.Logger
	Name  string // dedup namespace
}

// Handle is installed as the consumer handler. Each event id is delivered
// at most once; a failed send releases the claim so the retry can run.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("skip undecodable message", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	n, ok, err := s.render(env)
	if err != nil {
		s.Log.Warn("skip malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	// 2) dedup on event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}

	// 3) deliver
	if err := s.Sink.Send(ctx, n); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (s *Service) render(env orders.Envelope) (Notification, bool, error) {
	switch env.EventType {
	case orders.EventOrderConfirmed:
		p, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		return Notification{
			EventID: env.EventID,
			OrderID: p.OrderID,
			Email:   p.Email,
			Subject: "Order confirmed",
			Body: fmt.Sprintf("Payment of Rs %s received for %d item(s). Order %s is being placed.",
				orders.FromMinor(p.AmountMinor).StringFixed(2), p.ItemCount, p.OrderID),
		}, true, nil
	case orders.EventOrderStatusUpdated:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusUpdatedPayload](env.Payload)
		if err != nil {
			return Notification{}, false, err
		}
		return Notification{
			EventID: env.EventID,
			OrderID: p.OrderID,
			Email:   p.Email,
			Subject: "Order " + statusText(p.Status),
			Body:    fmt.Sprintf("Your order %s is now %s.", p.OrderID, statusText(p.Status)),
		}, true, nil
	}
	return Notification{}, false, nil
}

func statusText(s orders.DeliveryStatus) string {
	switch s {
	case orders.StatusPlaced:
		return "placed"
	case orders.StatusPreparing:
		return "being prepared"
	case orders.StatusOutForDelivery:
		return "out for delivery"
	case orders.StatusDelivered:
		return "delivered"
	}
	return string(s)
}
