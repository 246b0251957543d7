package checkout

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type fakeGateway struct {
	mu        sync.Mutex
	initiate  func(phonepe.Intent) (phonepe.Result, error)
	status    func(txID string) (phonepe.Result, error)
	intents   []phonepe.Intent
	statusHit int
}

func (g *fakeGateway) Initiate(_ context.Context, in phonepe.Intent) (phonepe.Result, error) {
	g.mu.Lock()
	g.intents = append(g.intents, in)
	g.mu.Unlock()
	return g.initiate(in)
}

func (g *fakeGateway) QueryStatus(_ context.Context, txID string) (phonepe.Result, error) {
	g.mu.Lock()
	g.statusHit++
	g.mu.Unlock()
	return g.status(txID)
}

func acceptPayment(in phonepe.Intent) (phonepe.Result, error) {
	return phonepe.Result{
		Success:               true,
		Code:                  "PAYMENT_INITIATED",
		RedirectURL:           "https://pay.example/" + in.TransactionID,
		ProviderTransactionID: "T" + in.TransactionID,
		MerchantTransactionID: in.TransactionID,
	}, nil
}

func paidStatus(amount int64) func(string) (phonepe.Result, error) {
	return func(txID string) (phonepe.Result, error) {
		return phonepe.Result{
			Success:               true,
			Code:                  phonepe.CodePaymentSuccess,
			MerchantTransactionID: txID,
			Amount:                amount,
			State:                 phonepe.StateCompleted,
		}, nil
	}
}

// memLedger mirrors the unique transaction_id constraint of the orders table.
type memLedger struct {
	mu     sync.Mutex
	byID   map[string]orders.ConfirmedOrder
	byTx   map[string]string
	insert int
}

func newMemLedger() *memLedger {
	return &memLedger{byID: map[string]orders.ConfirmedOrder{}, byTx: map[string]string{}}
}

func (l *memLedger) Insert(_ context.Context, o orders.ConfirmedOrder) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byTx[o.TransactionID]; ok {
		return "", orders.ErrDuplicateTransaction
	}
	l.insert++
	l.byID[o.ID] = o
	l.byTx[o.TransactionID] = o.ID
	return o.ID, nil
}

func (l *memLedger) FindByUser(_ context.Context, userID string) ([]orders.ConfirmedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []orders.ConfirmedOrder{}
	for _, o := range l.byID {
		if o.CustomerID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *memLedger) FindAll(_ context.Context) ([]orders.ConfirmedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []orders.ConfirmedOrder{}
	for _, o := range l.byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *memLedger) FindByID(_ context.Context, id string) (orders.ConfirmedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[id]
	if !ok {
		return o, orders.ErrOrderNotFound
	}
	return o, nil
}

func (l *memLedger) FindByTransactionID(ctx context.Context, txID string) (orders.ConfirmedOrder, error) {
	l.mu.Lock()
	id, ok := l.byTx[txID]
	l.mu.Unlock()
	if !ok {
		return orders.ConfirmedOrder{}, orders.ErrOrderNotFound
	}
	return l.FindByID(ctx, id)
}

func (l *memLedger) UpdateDeliveryStatus(_ context.Context, id string, from, to orders.DeliveryStatus) (orders.ConfirmedOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[id]
	if !ok {
		return o, orders.ErrOrderNotFound
	}
	if o.DeliveryStatus != from {
		return o, orders.ErrInvalidTransition
	}
	o.DeliveryStatus = to
	o.UpdatedAt = time.Now().UTC()
	l.byID[id] = o
	return o, nil
}

type published struct {
	Topic   string
	Key     string
	Value   []byte
	Headers []kafkago.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{Topic: topic, Key: string(key), Value: value, Headers: headers})
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Topic)
	}
	return out
}

type fakeHub struct {
	mu   sync.Mutex
	sent []orders.ConfirmedOrder
}

func (h *fakeHub) Broadcast(_ context.Context, o orders.ConfirmedOrder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, o)
}

type fixture struct {
	svc     *Service
	gateway *fakeGateway
	pending *orders.PendingStore
	ledger  *memLedger
	events  *fakePublisher
	hub     *fakeHub
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		gateway: &fakeGateway{initiate: acceptPayment, status: paidStatus(50000)},
		pending: &orders.PendingStore{Redis: rdb, TTL: 30 * time.Minute},
		ledger:  newMemLedger(),
		events:  &fakePublisher{},
		hub:     &fakeHub{},
		mr:      mr,
	}
	f.svc = &Service{
		Gateway:         f.gateway,
		Pending:         f.pending,
		Ledger:          f.ledger,
		Cache:           &orders.OrderCache{Redis: rdb},
		Hub:             f.hub,
		Events:          f.events,
		Log:             zaptest.NewLogger(t),
		ServiceName:     "food-order-api",
		ProviderTimeout: time.Second,
	}
	return f
}

func sampleIntent() Intent {
	return Intent{
		Customer: Customer{ID: "u-1", Name: "Asha", Email: "asha@example.com", Mobile: "9999999999"},
		CartItems: []orders.CartItem{
			{ItemID: "pz-1", Name: "Margherita", Variant: "medium", Qty: 2, Price: decimal.RequireFromString("200")},
			{ItemID: "pz-2", Name: "Farmhouse", Variant: "small", Qty: 1, Price: decimal.RequireFromString("100")},
		},
		Subtotal:        decimal.RequireFromString("500"),
		DeliveryAddress: orders.DeliveryAddress{Name: "Asha", Contact: "9999999999", Line1: "12 MG Road", City: "Pune"},
	}
}
