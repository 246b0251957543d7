package checkout

import (
	"context"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const eventVersion = 1

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// publish wraps payload in a v1 envelope keyed by transaction id.
func publish(ctx context.Context, pub Publisher, producer string, now time.Time, topic, eventType, transactionID string, payload any) {
	if pub == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    now,
		Producer:      producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: transactionID,
		Payload:       kafkax.MustMarshal(payload),
	}
	pub.Publish(topic, orders.PartitionKey(transactionID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(eventVersion))},
	)
}
