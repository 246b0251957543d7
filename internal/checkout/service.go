// Package checkout coordinates a payment attempt from placement through
// provider confirmation to a confirmed order, and the delivery updates
// that follow.
//
//	INITIATED -> PENDING_CONFIRMATION -> CONFIRMED
//	INITIATED -> DECLINED
//	PENDING_CONFIRMATION -> EXPIRED   (Sweeper)
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultProviderTimeout = 20 * time.Second
	storeTimeout           = 5 * time.Second
)

type Gateway interface {
	Initiate(ctx context.Context, in phonepe.Intent) (phonepe.Result, error)
	QueryStatus(ctx context.Context, transactionID string) (phonepe.Result, error)
}

type PendingOrders interface {
	Put(ctx context.Context, p orders.PendingOrder) error
	Get(ctx context.Context, transactionID string) (orders.PendingOrder, error)
	Delete(ctx context.Context, transactionID string) (bool, error)
	Expired(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Ledger interface {
	Insert(ctx context.Context, o orders.ConfirmedOrder) (string, error)
	FindByUser(ctx context.Context, userID string) ([]orders.ConfirmedOrder, error)
	FindAll(ctx context.Context) ([]orders.ConfirmedOrder, error)
	FindByID(ctx context.Context, id string) (orders.ConfirmedOrder, error)
	FindByTransactionID(ctx context.Context, transactionID string) (orders.ConfirmedOrder, error)
	UpdateDeliveryStatus(ctx context.Context, id string, from, to orders.DeliveryStatus) (orders.ConfirmedOrder, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, o orders.ConfirmedOrder)
}

type OrderCache interface {
	Get(ctx context.Context, id string) (orders.ConfirmedOrder, bool)
	Set(ctx context.Context, o orders.ConfirmedOrder) error
}

type Customer struct {
	ID     string
	Name   string
	Email  string
	Mobile string
}

// Intent is a customer's request to pay for a cart.
type Intent struct {
	Customer        Customer
	CartItems       []orders.CartItem
	Subtotal        decimal.Decimal
	DeliveryAddress orders.DeliveryAddress
}

type PlaceResult struct {
	TransactionID string                `json:"transactionId"`
	PaymentURL    string                `json:"paymentUrl"`
	State         orders.LifecycleState `json:"state"`
}

type Confirmation struct {
	Order    orders.ConfirmedOrder
	Replayed bool
	State    orders.LifecycleState
}

// Service is the order lifecycle coordinator. Cache, Hub and Events are
// optional.
type Service struct {
	Gateway Gateway
	Pending PendingOrders
	Ledger  Ledger
	Cache   OrderCache
	Hub     Broadcaster
	Events  Publisher
	Log     *zap.Logger

	ServiceName     string
	ProviderTimeout time.Duration

	Now              func() time.Time
	NewTransactionID func() string
}

// NewTransactionID returns "ORD_" followed by 32 hex digits, within the
// provider's 38 character limit.
func NewTransactionID() string {
	return "ORD_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PlaceOrder asks the provider to open a payment for the intent and, once
// it accepts, records the pending order under a fresh transaction id.
func (s *Service) PlaceOrder(ctx context.Context, in Intent) (PlaceResult, error) {
	amount, err := validateIntent(in)
	if err != nil {
		return PlaceResult{}, err
	}

	txID := s.newTransactionID()
	log := s.log().With(zap.String("transaction_id", txID), zap.String("user_id", in.Customer.ID))
	log.Info("payment initiated", zap.Int64("amount_minor", amount), zap.String("state", string(orders.StateInitiated)))

	pctx, cancel := detached(ctx, s.providerTimeout())
	defer cancel()
	res, err := s.Gateway.Initiate(pctx, phonepe.Intent{
		TransactionID: txID,
		UserID:        in.Customer.ID,
		AmountMinor:   amount,
		Mobile:        in.Customer.Mobile,
	})
	if err != nil {
		metrics.RecordPayment("initiate", "error")
		log.Error("payment initiation failed", zap.String("state", string(orders.StateDeclined)), zap.Error(err))
		s.declined(ctx, txID, in.Customer.ID, "initiate", "GATEWAY_ERROR")
		return PlaceResult{TransactionID: txID, State: orders.StateDeclined}, fmt.Errorf("%w: %w", orders.ErrGateway, err)
	}
	if !res.Success || res.RedirectURL == "" {
		metrics.RecordPayment("initiate", "declined")
		log.Info("payment declined by provider", zap.String("code", res.Code), zap.String("state", string(orders.StateDeclined)))
		s.declined(ctx, txID, in.Customer.ID, "initiate", res.Code)
		return PlaceResult{TransactionID: txID, State: orders.StateDeclined}, fmt.Errorf("%w: %s", orders.ErrPaymentDeclined, res.Code)
	}

	items := make([]orders.CartItem, len(in.CartItems))
	copy(items, in.CartItems)
	p := orders.PendingOrder{
		TransactionID:   txID,
		CustomerID:      in.Customer.ID,
		CustomerName:    in.Customer.Name,
		CustomerEmail:   in.Customer.Email,
		CartItems:       items,
		DeliveryAddress: in.DeliveryAddress,
		AmountMinor:     amount,
		CreatedAt:       s.now(),
	}
	// the provider has a live session for txID; record it even if the caller left
	wctx, wcancel := detached(ctx, storeTimeout)
	defer wcancel()
	if err := s.Pending.Put(wctx, p); err != nil {
		metrics.RecordPayment("initiate", "error")
		log.Error("store pending order", zap.Error(err))
		return PlaceResult{TransactionID: txID, State: orders.StateDeclined}, fmt.Errorf("store pending order: %w", err)
	}

	metrics.RecordPayment("initiate", "accepted")
	log.Info("awaiting confirmation",
		zap.String("provider_transaction_id", res.ProviderTransactionID),
		zap.String("state", string(orders.StatePendingConfirmation)))
	return PlaceResult{TransactionID: txID, PaymentURL: res.RedirectURL, State: orders.StatePendingConfirmation}, nil
}

// ConfirmStatus promotes the pending order for transactionID once the
// provider reports it paid. Replays return the order already confirmed.
func (s *Service) ConfirmStatus(ctx context.Context, transactionID string) (Confirmation, error) {
	if transactionID == "" {
		return Confirmation{}, fmt.Errorf("%w: transaction id is required", orders.ErrValidation)
	}
	log := s.log().With(zap.String("transaction_id", transactionID))

	existing, err := s.Ledger.FindByTransactionID(ctx, transactionID)
	switch {
	case err == nil:
		log.Info("confirmation replayed", zap.String("order_id", existing.ID))
		return Confirmation{Order: existing, Replayed: true, State: orders.StateConfirmed}, nil
	case !errors.Is(err, orders.ErrOrderNotFound):
		return Confirmation{}, err
	}

	p, err := s.Pending.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, orders.ErrPendingNotFound) {
			log.Warn("confirmation without pending order")
		}
		return Confirmation{}, err
	}

	pctx, cancel := detached(ctx, s.providerTimeout())
	defer cancel()
	res, err := s.Gateway.QueryStatus(pctx, transactionID)
	if err != nil {
		metrics.RecordPayment("confirm", "error")
		log.Error("payment status query failed", zap.Error(err))
		return Confirmation{}, fmt.Errorf("%w: %w", orders.ErrGateway, err)
	}
	switch {
	case res.Pending():
		metrics.RecordPayment("confirm", "pending")
		log.Info("payment not settled", zap.String("code", res.Code), zap.String("provider_state", res.State))
		return Confirmation{State: orders.StatePendingConfirmation}, fmt.Errorf("%w: %s", orders.ErrPaymentPending, res.Code)
	case !res.Paid():
		metrics.RecordPayment("confirm", "declined")
		log.Info("payment declined by provider", zap.String("code", res.Code), zap.String("state", string(orders.StateDeclined)))
		s.declined(ctx, transactionID, p.CustomerID, "confirm", res.Code)
		return Confirmation{State: orders.StateDeclined}, fmt.Errorf("%w: %s", orders.ErrPaymentDeclined, res.Code)
	case res.MerchantTransactionID != transactionID || res.Amount != p.AmountMinor:
		metrics.RecordPayment("confirm", "mismatch")
		log.Error("provider confirmation does not match pending order",
			zap.String("provider_merchant_transaction_id", res.MerchantTransactionID),
			zap.Int64("provider_amount", res.Amount),
			zap.Int64("pending_amount", p.AmountMinor))
		return Confirmation{}, orders.ErrConfirmationMismatch
	}

	wctx, wcancel := detached(ctx, storeTimeout)
	defer wcancel()
	o := orders.Promote(p, uuid.NewString(), s.now())
	id, err := s.Ledger.Insert(wctx, o)
	if errors.Is(err, orders.ErrDuplicateTransaction) {
		// a concurrent confirmation won the insert
		winner, ferr := s.Ledger.FindByTransactionID(wctx, transactionID)
		if ferr != nil {
			return Confirmation{}, ferr
		}
		s.dropPending(wctx, log, transactionID)
		log.Info("confirmation replayed", zap.String("order_id", winner.ID))
		return Confirmation{Order: winner, Replayed: true, State: orders.StateConfirmed}, nil
	}
	if err != nil {
		return Confirmation{}, err
	}
	o.ID = id
	s.dropPending(wctx, log, transactionID)
	s.cache(wctx, o)

	metrics.RecordPayment("confirm", "success")
	metrics.RecordConfirmed()
	s.publish(ctx, orders.TopicOrderConfirmed, orders.EventOrderConfirmed, transactionID, orders.OrderConfirmedPayload{
		OrderID:       o.ID,
		TransactionID: transactionID,
		UserID:        o.CustomerID,
		Email:         o.CustomerEmail,
		AmountMinor:   o.AmountMinor,
		ItemCount:     len(o.CartItems),
	})
	log.Info("order confirmed", zap.String("order_id", o.ID), zap.String("state", string(orders.StateConfirmed)))
	return Confirmation{Order: o, State: orders.StateConfirmed}, nil
}

// MarkDelivered moves an order one step along its delivery status. An
// empty status advances to the next step.
func (s *Service) MarkDelivered(ctx context.Context, orderID string, status orders.DeliveryStatus) (orders.ConfirmedOrder, error) {
	if orderID == "" {
		return orders.ConfirmedOrder{}, fmt.Errorf("%w: order id is required", orders.ErrValidation)
	}
	if status != "" && !status.Valid() {
		return orders.ConfirmedOrder{}, fmt.Errorf("%w: unknown delivery status %q", orders.ErrValidation, status)
	}

	cur, err := s.Ledger.FindByID(ctx, orderID)
	if err != nil {
		return orders.ConfirmedOrder{}, err
	}
	if status == "" {
		next, ok := cur.DeliveryStatus.Next()
		if !ok {
			return orders.ConfirmedOrder{}, fmt.Errorf("%w: order already %s", orders.ErrInvalidTransition, cur.DeliveryStatus)
		}
		status = next
	}
	if !orders.CanTransition(cur.DeliveryStatus, status) {
		return orders.ConfirmedOrder{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, cur.DeliveryStatus, status)
	}

	updated, err := s.Ledger.UpdateDeliveryStatus(ctx, orderID, cur.DeliveryStatus, status)
	if err != nil {
		return orders.ConfirmedOrder{}, err
	}
	s.cache(ctx, updated)
	if s.Hub != nil {
		s.Hub.Broadcast(ctx, updated)
	}
	s.publish(ctx, orders.TopicOrderStatusUpdated, orders.EventOrderStatusUpdated, updated.TransactionID, orders.OrderStatusUpdatedPayload{
		OrderID:        updated.ID,
		TransactionID:  updated.TransactionID,
		UserID:         updated.CustomerID,
		Email:          updated.CustomerEmail,
		PreviousStatus: cur.DeliveryStatus,
		Status:         updated.DeliveryStatus,
	})
	s.log().Info("delivery status updated",
		zap.String("order_id", updated.ID),
		zap.String("from", string(cur.DeliveryStatus)),
		zap.String("to", string(updated.DeliveryStatus)))
	return updated, nil
}

// GetOrder reads through the order cache.
func (s *Service) GetOrder(ctx context.Context, id string) (orders.ConfirmedOrder, error) {
	if s.Cache != nil {
		if o, ok := s.Cache.Get(ctx, id); ok {
			return o, nil
		}
	}
	o, err := s.Ledger.FindByID(ctx, id)
	if err != nil {
		return orders.ConfirmedOrder{}, err
	}
	s.cache(ctx, o)
	return o, nil
}

func (s *Service) UserOrders(ctx context.Context, userID string) ([]orders.ConfirmedOrder, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userid is required", orders.ErrValidation)
	}
	return s.Ledger.FindByUser(ctx, userID)
}

func (s *Service) AllOrders(ctx context.Context) ([]orders.ConfirmedOrder, error) {
	return s.Ledger.FindAll(ctx)
}

func (s *Service) dropPending(ctx context.Context, log *zap.Logger, transactionID string) {
	// leftovers are removed by the sweeper
	if _, err := s.Pending.Delete(ctx, transactionID); err != nil {
		log.Warn("delete pending order", zap.Error(err))
	}
}

func (s *Service) cache(ctx context.Context, o orders.ConfirmedOrder) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, o); err != nil {
		s.log().Debug("cache order", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) declined(ctx context.Context, transactionID, userID, stage, code string) {
	s.publish(ctx, orders.TopicPaymentDeclined, orders.EventPaymentDeclined, transactionID, orders.PaymentDeclinedPayload{
		TransactionID: transactionID,
		UserID:        userID,
		Stage:         stage,
		Code:          code,
	})
}

func (s *Service) publish(ctx context.Context, topic, eventType, transactionID string, payload any) {
	publish(ctx, s.Events, s.ServiceName, s.now(), topic, eventType, transactionID, payload)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newTransactionID() string {
	if s.NewTransactionID != nil {
		return s.NewTransactionID()
	}
	return NewTransactionID()
}

func (s *Service) providerTimeout() time.Duration {
	if s.ProviderTimeout > 0 {
		return s.ProviderTimeout
	}
	return defaultProviderTimeout
}

// detached keeps ctx's values but not its cancellation.
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func validateIntent(in Intent) (int64, error) {
	var problems []string
	if in.Customer.ID == "" {
		problems = append(problems, "currentUser.id is required")
	}
	if len(in.CartItems) == 0 {
		problems = append(problems, "cartItems must not be empty")
	}
	for i, it := range in.CartItems {
		if it.ItemID == "" {
			problems = append(problems, fmt.Sprintf("cartItems[%d].itemId is required", i))
		}
		if it.Qty <= 0 {
			problems = append(problems, fmt.Sprintf("cartItems[%d].qty must be positive", i))
		}
		if it.Price.IsNegative() {
			problems = append(problems, fmt.Sprintf("cartItems[%d].price must not be negative", i))
		}
	}
	if in.DeliveryAddress.Line1 == "" {
		problems = append(problems, "deliveryAddress.line1 is required")
	}

	amount, ok := orders.ToMinor(in.Subtotal)
	switch {
	case !in.Subtotal.IsPositive():
		problems = append(problems, "subtotal must be positive")
	case in.Subtotal.GreaterThan(orders.MaxAmount):
		problems = append(problems, "subtotal is too large")
	case !ok:
		problems = append(problems, "subtotal has more than two decimal places")
	}

	if len(problems) > 0 {
		return 0, fmt.Errorf("%w: %s", orders.ErrValidation, strings.Join(problems, "; "))
	}
	return amount, nil
}
