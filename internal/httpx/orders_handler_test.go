package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/auth"
	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCheckout struct {
	placed    []checkout.Intent
	placeErr  error
	confirmed []string
	confirm   func(txID string) (checkout.Confirmation, error)
	orders    map[string]orders.ConfirmedOrder
	deliverTo orders.DeliveryStatus
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, in checkout.Intent) (checkout.PlaceResult, error) {
	f.placed = append(f.placed, in)
	if f.placeErr != nil {
		return checkout.PlaceResult{State: orders.StateDeclined}, f.placeErr
	}
	return checkout.PlaceResult{TransactionID: "ORD_1", PaymentURL: "https://pay.example/ORD_1", State: orders.StatePendingConfirmation}, nil
}

func (f *fakeCheckout) ConfirmStatus(_ context.Context, txID string) (checkout.Confirmation, error) {
	f.confirmed = append(f.confirmed, txID)
	return f.confirm(txID)
}

func (f *fakeCheckout) MarkDelivered(_ context.Context, id string, s orders.DeliveryStatus) (orders.ConfirmedOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return o, orders.ErrOrderNotFound
	}
	if !orders.CanTransition(o.DeliveryStatus, s) {
		return o, orders.ErrInvalidTransition
	}
	o.DeliveryStatus = s
	f.orders[id] = o
	f.deliverTo = s
	return o, nil
}

func (f *fakeCheckout) GetOrder(_ context.Context, id string) (orders.ConfirmedOrder, error) {
	o, ok := f.orders[id]
	if !ok {
		return o, orders.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeCheckout) UserOrders(_ context.Context, userID string) ([]orders.ConfirmedOrder, error) {
	out := []orders.ConfirmedOrder{}
	for _, o := range f.orders {
		if o.CustomerID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeCheckout) AllOrders(_ context.Context) ([]orders.ConfirmedOrder, error) {
	out := []orders.ConfirmedOrder{}
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

type fakeCallbacks struct {
	res phonepe.Result
	err error
}

func (f fakeCallbacks) DecodeCallback([]byte, string) (phonepe.Result, error) { return f.res, f.err }

type ordersFixture struct {
	router   *chi.Mux
	checkout *fakeCheckout
	cb       *fakeCallbacks
	user     string
	admin    string
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	iss := auth.NewIssuer("s3cret", time.Hour)
	user, err := iss.Issue("u-1", "Asha", "asha@example.com", false)
	require.NoError(t, err)
	admin, err := iss.Issue("admin-1", "Admin", "admin@example.com", true)
	require.NoError(t, err)

	fc := &fakeCheckout{
		confirm: func(string) (checkout.Confirmation, error) {
			return checkout.Confirmation{Order: orders.ConfirmedOrder{ID: "o-1"}, State: orders.StateConfirmed}, nil
		},
		orders: map[string]orders.ConfirmedOrder{
			"o-1": {ID: "o-1", TransactionID: "ORD_1", CustomerID: "u-1", DeliveryStatus: orders.StatusPlaced, AmountMinor: 50000},
			"o-2": {ID: "o-2", TransactionID: "ORD_2", CustomerID: "u-2", DeliveryStatus: orders.StatusPlaced, AmountMinor: 10000},
		},
	}
	cb := &fakeCallbacks{res: phonepe.Result{Success: true, Code: phonepe.CodePaymentSuccess, MerchantTransactionID: "ORD_1"}}

	r := NewRouter(log, nil)
	h := &OrdersHandler{Checkout: fc, Callbacks: cb, Auth: &Authenticator{Verifier: iss}, FrontendURL: "https://food.example", Log: log}
	h.Register(r)
	return &ordersFixture{router: r, checkout: fc, cb: cb, user: user, admin: admin}
}

func (f *ordersFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const placeOrderBody = `{
  "currentUser": {"_id": "u-1", "name": "Asha", "email": "asha@example.com"},
  "cartItems": [{"itemId": "pz-1", "name": "Margherita", "variant": "medium", "qty": 2, "price": 250}],
  "subtotal": 500,
  "deliveryAddress": {"name": "Asha", "contact": "9999999999", "line1": "12 MG Road"}
}`

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestPlaceOrder(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/placeorder", f.user, placeOrderBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res checkout.PlaceResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "https://pay.example/ORD_1", res.PaymentURL)

	require.Len(t, f.checkout.placed, 1)
	in := f.checkout.placed[0]
	assert.Equal(t, "u-1", in.Customer.ID)
	assert.Equal(t, "9999999999", in.Customer.Mobile)
	assert.Equal(t, "500", in.Subtotal.String())
	assert.Equal(t, "250", in.CartItems[0].Price.String())
}

func TestPlaceOrder_RequiresToken(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/placeorder", "", placeOrderBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.checkout.placed)
}

func TestPlaceOrder_SchemaViolation(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/placeorder", f.user, `{"cartItems": [], "subtotal": 500}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, kindValidation, decodeError(t, w).Kind)
	assert.Empty(t, f.checkout.placed)
}

func TestPlaceOrder_OtherUser(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/placeorder", f.admin, placeOrderBody)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{orders.ErrPaymentDeclined, http.StatusBadRequest, kindPaymentDeclined},
		{&phonepe.GatewayError{Op: "pay", StatusCode: 500}, http.StatusBadGateway, kindGateway},
		{orders.ErrGateway, http.StatusBadGateway, kindGateway},
		{orders.ErrDuplicateTransaction, http.StatusConflict, kindDuplicateTransaction},
	}
	for _, tc := range cases {
		f := newOrdersFixture(t)
		f.checkout.placeErr = tc.err

		w := f.do(http.MethodPost, "/orders/placeorder", f.user, placeOrderBody)
		assert.Equal(t, tc.code, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, tc.kind, body.Kind)
		assert.NotContains(t, body.Message, "http 500")
	}
}

func TestPaymentStatus_Redirects(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/status?id=ORD_1", "", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://food.example/orders", w.Header().Get("Location"))
	assert.Equal(t, []string{"ORD_1"}, f.checkout.confirmed)
}

func TestPaymentStatus_Failure(t *testing.T) {
	f := newOrdersFixture(t)
	f.checkout.confirm = func(string) (checkout.Confirmation, error) {
		return checkout.Confirmation{}, orders.ErrPaymentDeclined
	}

	w := f.do(http.MethodPost, "/orders/status?id=ORD_1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "payment failed", w.Body.String())
}

func TestPaymentStatus_UnknownTransaction(t *testing.T) {
	f := newOrdersFixture(t)
	f.checkout.confirm = func(string) (checkout.Confirmation, error) {
		return checkout.Confirmation{}, orders.ErrPendingNotFound
	}

	w := f.do(http.MethodPost, "/orders/status?id=ORD_x", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhonePeCallback(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/phonepe-callback", "", `{"response":"e30="}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp callbackResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, orders.StateConfirmed, resp.Status)
	assert.Equal(t, "o-1", resp.OrderID)
	assert.Equal(t, []string{"ORD_1"}, f.checkout.confirmed)
}

func TestPhonePeCallback_BadSignature(t *testing.T) {
	f := newOrdersFixture(t)
	f.cb.err = phonepe.ErrBadSignature

	w := f.do(http.MethodPost, "/orders/phonepe-callback", "", `{"response":"e30="}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.checkout.confirmed)
}

func TestPhonePeCallback_DeclinedIsAcknowledged(t *testing.T) {
	f := newOrdersFixture(t)
	f.checkout.confirm = func(string) (checkout.Confirmation, error) {
		return checkout.Confirmation{State: orders.StateDeclined}, orders.ErrPaymentDeclined
	}

	w := f.do(http.MethodPost, "/orders/phonepe-callback", "", `{"response":"e30="}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"DECLINED"`)
}

func TestUserOrders(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/getuserorders", f.user, UserOrdersReq{UserID: "u-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "o-1", list[0]["id"])
	assert.Equal(t, "500", list[0]["orderAmount"])

	w = f.do(http.MethodPost, "/orders/getuserorders", f.user, UserOrdersReq{UserID: "u-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/orders/getuserorders", f.admin, UserOrdersReq{UserID: "u-2"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAllOrders_AdminOnly(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodGet, "/orders/getallorders", f.user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/orders/getallorders", f.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []orders.ConfirmedOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestDeliverOrder(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodPost, "/orders/deliverorder", f.user, DeliverOrderReq{OrderID: "o-1", NewStatus: orders.StatusPreparing})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/orders/deliverorder", f.admin, DeliverOrderReq{OrderID: "o-1", NewStatus: orders.StatusPreparing})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deliveryStatus":"PREPARING"`)

	w = f.do(http.MethodPost, "/orders/deliverorder", f.admin, DeliverOrderReq{OrderID: "o-1", NewStatus: orders.StatusPlaced})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, kindForwardTransition, decodeError(t, w).Kind)

	w = f.do(http.MethodPost, "/orders/deliverorder", f.admin, DeliverOrderReq{OrderID: "nope", NewStatus: orders.StatusPreparing})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodGet, "/orders/o-1", f.user, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/orders/o-2", f.user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/orders/o-2", f.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthz(t *testing.T) {
	f := newOrdersFixture(t)

	w := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
