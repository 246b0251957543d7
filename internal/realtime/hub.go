// Package realtime fans delivery-status changes out to connected observers.
//
// Delivery is at-most-once: a slow or gone observer misses updates and is
// expected to re-fetch current state from the orders API when it reconnects.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"go.uber.org/zap"
)

const (
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventUpdateOrderStatus  = "updateOrderStatus"
	EventError              = "error"
)

type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber is one observer's handle on the hub.
type Subscriber struct {
	hub *Hub
	ch  chan []byte
}

// Events yields encoded Message frames; it is closed when the subscriber
// is closed or the hub shuts down.
func (s *Subscriber) Events() <-chan []byte { return s.ch }

func (s *Subscriber) Close() { s.hub.remove(s) }

type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buf    int
	closed bool
	log    *zap.Logger
}

func NewHub(buf int, log *zap.Logger) *Hub {
	if buf <= 0 {
		buf = 16
	}
	return &Hub{subs: map[*Subscriber]struct{}{}, buf: buf, log: log.Named("realtime")}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{hub: h, ch: make(chan []byte, h.buf)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	metrics.ObserverConnected()
	return s
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	metrics.ObserverDisconnected()
}

// Broadcast pushes the order to every observer without blocking.
func (h *Hub) Broadcast(_ context.Context, o orders.ConfirmedOrder) {
	data, err := json.Marshal(o)
	if err != nil {
		h.log.Error("encode order", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	frame, _ := json.Marshal(Message{Event: EventOrderStatusUpdated, Data: data})

	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for s := range h.subs {
		select {
		case s.ch <- frame:
		default:
			dropped++
			metrics.RecordBroadcastDropped()
		}
	}
	if dropped > 0 {
		h.log.Warn("observers lagging, update dropped", zap.String("order_id", o.ID), zap.Int("dropped", dropped))
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
		metrics.ObserverDisconnected()
	}
}
