package orders

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ItemID  string          `json:"itemId"`
	Name    string          `json:"name,omitempty"`
	Variant string          `json:"variant,omitempty"`
	Qty     int             `json:"qty"`
	Price   decimal.Decimal `json:"price"`
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type DeliveryAddress struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
	Geo     *Geo   `json:"geo,omitempty"`
}

// PendingOrder lives between a successful payment initiation and its
// confirmation. It is never mutated.
type PendingOrder struct {
	TransactionID   string          `json:"transactionId"`
	CustomerID      string          `json:"userid"`
	CustomerName    string          `json:"name"`
	CustomerEmail   string          `json:"email"`
	CartItems       []CartItem      `json:"orderItems"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	AmountMinor     int64           `json:"amountMinor"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type ConfirmedOrder struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transactionId"`
	CustomerID      string          `json:"userid"`
	CustomerName    string          `json:"name"`
	CustomerEmail   string          `json:"email"`
	CartItems       []CartItem      `json:"orderItems"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	AmountMinor     int64           `json:"amountMinor"`
	DeliveryStatus  DeliveryStatus  `json:"deliveryStatus"`
	PlacedAt        time.Time       `json:"placedAt"` // pending order creation
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderAmount is the amount in major currency units (rupees).
func (o ConfirmedOrder) OrderAmount() decimal.Decimal {
	return FromMinor(o.AmountMinor)
}

func (o ConfirmedOrder) MarshalJSON() ([]byte, error) {
	type alias ConfirmedOrder
	return json.Marshal(struct {
		alias
		OrderAmount decimal.Decimal `json:"orderAmount"`
		IsDelivered bool            `json:"isDelivered"`
	}{
		alias:       alias(o),
		OrderAmount: o.OrderAmount(),
		IsDelivered: o.DeliveryStatus == StatusDelivered,
	})
}

// Promote copies a pending order verbatim into a new ledger entry.
func Promote(p PendingOrder, id string, now time.Time) ConfirmedOrder {
	items := make([]CartItem, len(p.CartItems))
	copy(items, p.CartItems)
	return ConfirmedOrder{
		ID:              id,
		TransactionID:   p.TransactionID,
		CustomerID:      p.CustomerID,
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
		CartItems:       items,
		DeliveryAddress: p.DeliveryAddress,
		AmountMinor:     p.AmountMinor,
		DeliveryStatus:  StatusPlaced,
		PlacedAt:        p.CreatedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)

	// MaxAmount is the largest major-unit amount that fits in paise.
	MaxAmount = FromMinor(math.MaxInt64)
)

// ToMinor converts a major-unit amount to paise. ok is false when the
// amount has a fraction of a paisa or does not fit in an int64.
func ToMinor(amount decimal.Decimal) (minor int64, ok bool) {
	m := amount.Mul(hundred)
	if !m.IsInteger() || m.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return m.IntPart(), true
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
