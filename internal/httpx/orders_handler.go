package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/auth"
	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type Checkout interface {
	PlaceOrder(ctx context.Context, in checkout.Intent) (checkout.PlaceResult, error)
	ConfirmStatus(ctx context.Context, transactionID string) (checkout.Confirmation, error)
	MarkDelivered(ctx context.Context, orderID string, status orders.DeliveryStatus) (orders.ConfirmedOrder, error)
	GetOrder(ctx context.Context, id string) (orders.ConfirmedOrder, error)
	UserOrders(ctx context.Context, userID string) ([]orders.ConfirmedOrder, error)
	AllOrders(ctx context.Context) ([]orders.ConfirmedOrder, error)
}

type CallbackDecoder interface {
	DecodeCallback(body []byte, xVerify string) (phonepe.Result, error)
}

type OrdersHandler struct {
	Checkout    Checkout
	Callbacks   CallbackDecoder
	Auth        *Authenticator
	FrontendURL string
	Log         *zap.Logger
}

type currentUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PlaceOrderReq struct {
	CurrentUser     currentUser            `json:"currentUser"`
	CartItems       []orders.CartItem      `json:"cartItems"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	DeliveryAddress orders.DeliveryAddress `json:"deliveryAddress"`
}

type UserOrdersReq struct {
	UserID string `json:"userid"`
}

type DeliverOrderReq struct {
	OrderID   string                `json:"orderid"`
	NewStatus orders.DeliveryStatus `json:"newStatus"`
}

type callbackResp struct {
	Status  orders.LifecycleState `json:"status"`
	OrderID string                `json:"orderId,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		// provider-facing
		r.Post("/status", h.paymentStatus)
		r.Post("/phonepe-callback", h.phonepeCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuth)
			r.Post("/placeorder", h.placeOrder)
			r.Post("/getuserorders", h.userOrders)
			r.Get("/{id}", h.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(h.Auth.RequireAdmin)
				r.Get("/getallorders", h.allOrders)
				r.Post("/deliverorder", h.deliverOrder)
			})
		})
	})
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: body too large", orders.ErrValidation))
		return
	}
	if err := validateJSONSchema(placeOrderLoader, body); err != nil {
		writeError(w, h.Log, err)
		return
	}
	var req PlaceOrderReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: %v", orders.ErrValidation, err))
		return
	}
	if req.CurrentUser.ID != "" && req.CurrentUser.ID != claims.UserID() {
		writeJSON(w, http.StatusForbidden, errorBody{Kind: kindForbidden, Message: "currentUser does not match token"})
		return
	}

	res, err := h.Checkout.PlaceOrder(r.Context(), checkout.Intent{
		Customer: checkout.Customer{
			ID:     claims.UserID(),
			Name:   claims.Name,
			Email:  claims.Email,
			Mobile: req.DeliveryAddress.Contact,
		},
		CartItems:       req.CartItems,
		Subtotal:        req.Subtotal,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// paymentStatus is the browser redirect target after the pay page.
func (h *OrdersHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	txID := r.URL.Query().Get("id")
	if _, err := h.Checkout.ConfirmStatus(r.Context(), txID); err != nil {
		code, body := classify(err)
		h.Log.Info("payment status", zap.String("transaction_id", txID), zap.String("kind", body.Kind), zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body.Message))
		return
	}
	http.Redirect(w, r, h.FrontendURL+"/orders", http.StatusSeeOther)
}

// phonepeCallback acknowledges every decided payment with 200 so the
// provider stops retrying; only signature and transport problems fail.
func (h *OrdersHandler) phonepeCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: body too large", orders.ErrValidation))
		return
	}
	res, err := h.Callbacks.DecodeCallback(body, r.Header.Get("X-VERIFY"))
	if err != nil {
		if !errors.Is(err, phonepe.ErrBadSignature) {
			err = fmt.Errorf("%w: %v", orders.ErrValidation, err)
		}
		writeError(w, h.Log, err)
		return
	}

	// the callback only says which transaction to check; the outcome
	// always comes from a fresh status query
	c, err := h.Checkout.ConfirmStatus(r.Context(), res.MerchantTransactionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, callbackResp{Status: c.State, OrderID: c.Order.ID})
	case errors.Is(err, orders.ErrPaymentDeclined):
		writeJSON(w, http.StatusOK, callbackResp{Status: orders.StateDeclined})
	case errors.Is(err, orders.ErrPaymentPending):
		writeJSON(w, http.StatusOK, callbackResp{Status: orders.StatePendingConfirmation})
	default:
		writeError(w, h.Log, err)
	}
}

func (h *OrdersHandler) userOrders(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	var req UserOrdersReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.Log, fmt.Errorf("%w: invalid json", orders.ErrValidation))
		return
	}
	if req.UserID == "" {
		req.UserID = claims.UserID()
	}
	if req.UserID != claims.UserID() && !claims.Admin {
		writeJSON(w, http.StatusForbidden, errorBody{Kind: kindForbidden, Message: "cannot read another user's orders"})
		return
	}
	list, err := h.Checkout.UserOrders(r.Context(), req.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) allOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Checkout.AllOrders(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	var req DeliverOrderReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: invalid json", orders.ErrValidation))
		return
	}
	o, err := h.Checkout.MarkDelivered(r.Context(), req.OrderID, req.NewStatus)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	o, err := h.Checkout.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	// other customers' orders look missing
	if o.CustomerID != claims.UserID() && !claims.Admin {
		writeError(w, h.Log, orders.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
