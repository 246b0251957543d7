package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderConfirmed      = "OrderConfirmed"
	EventPaymentDeclined     = "PaymentDeclined"
	EventOrderStatusUpdated  = "OrderStatusUpdated"
	EventPendingOrderExpired = "PendingOrderExpired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "food-order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // transaction id
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	AmountMinor   int64  `json:"amount_minor"`
	ItemCount     int    `json:"item_count"`
}

type PaymentDeclinedPayload struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Stage         string `json:"stage"` // initiate | confirm
	Code          string `json:"code,omitempty"`
}

type OrderStatusUpdatedPayload struct {
	OrderID        string         `json:"order_id"`
	TransactionID  string         `json:"transaction_id"`
	UserID         string         `json:"user_id"`
	Email          string         `json:"email"`
	PreviousStatus DeliveryStatus `json:"previous_status"`
	Status         DeliveryStatus `json:"status"`
}

type PendingOrderExpiredPayload struct {
	TransactionID string         `json:"transaction_id"`
	State         LifecycleState `json:"state"`
}
