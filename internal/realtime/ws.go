package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/auth"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 4096
	updateTimeout  = 5 * time.Second
)

type StatusUpdater interface {
	MarkDelivered(ctx context.Context, orderID string, status orders.DeliveryStatus) (orders.ConfirmedOrder, error)
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type UpdateOrderStatus struct {
	OrderID   string                `json:"orderId"`
	NewStatus orders.DeliveryStatus `json:"newStatus"`
}

// Server upgrades authenticated requests to websocket observers. Admin
// connections may also send updateOrderStatus events.
type Server struct {
	Hub      *Hub
	Updater  StatusUpdater
	Verifier TokenVerifier
	Log      *zap.Logger
	Upgrader websocket.Upgrader
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := s.Verifier.Verify(bearer(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	// subscribe first so nothing broadcast after the handshake is missed
	sub := s.Hub.Subscribe()
	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		s.Log.Debug("websocket upgrade", zap.Error(err))
		return
	}

	replies := make(chan []byte, 8)
	done := make(chan struct{})

	go s.writePump(conn, sub, replies, done)
	s.readPump(r.Context(), conn, claims, replies)

	close(done)
	sub.Close()
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, claims *auth.Claims, replies chan<- []byte) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if msg.Event != EventUpdateOrderStatus {
			reply(replies, "unsupported event")
			continue
		}
		if !claims.Admin {
			reply(replies, "forbidden")
			continue
		}
		var upd UpdateOrderStatus
		if err := json.Unmarshal(msg.Data, &upd); err != nil || upd.OrderID == "" {
			reply(replies, "invalid updateOrderStatus payload")
			continue
		}
		// the caller may go away; the ledger update should not
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), updateTimeout)
		_, err := s.Updater.MarkDelivered(uctx, upd.OrderID, upd.NewStatus)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, orders.ErrOrderNotFound):
			reply(replies, "order not found")
		case errors.Is(err, orders.ErrInvalidTransition):
			reply(replies, err.Error())
		default:
			s.Log.Error("websocket status update", zap.String("order_id", upd.OrderID), zap.Error(err))
			reply(replies, "update failed")
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *Subscriber, replies <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		var frame []byte
		select {
		case f, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			frame = f
		case frame = <-replies:
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		case <-done:
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func reply(replies chan<- []byte, message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	frame, _ := json.Marshal(Message{Event: EventError, Data: data})
	select {
	case replies <- frame:
	default:
	}
}

func bearer(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if parts := strings.Fields(h); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}
