package orders

type DeliveryStatus string

const (
	StatusPlaced         DeliveryStatus = "PLACED"
	StatusPreparing      DeliveryStatus = "PREPARING"
	StatusOutForDelivery DeliveryStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      DeliveryStatus = "DELIVERED"
)

var validNext = map[DeliveryStatus]DeliveryStatus{
	StatusPlaced:         StatusPreparing,
	StatusPreparing:      StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPlaced, StatusPreparing, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

// Next returns the only status s may move to; ok is false once delivered.
func (s DeliveryStatus) Next() (DeliveryStatus, bool) {
	n, ok := validNext[s]
	return n, ok
}

func CanTransition(from, to DeliveryStatus) bool {
	n, ok := validNext[from]
	return ok && n == to
}

// LifecycleState tracks a payment attempt from placement to promotion.
type LifecycleState string

const (
	StateInitiated           LifecycleState = "INITIATED"
	StatePendingConfirmation LifecycleState = "PENDING_CONFIRMATION"
	StateConfirmed           LifecycleState = "CONFIRMED"
	StateDeclined            LifecycleState = "DECLINED"
	StateExpired             LifecycleState = "EXPIRED"
)
