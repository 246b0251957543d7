package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/ariefcatur/go-food-orders/internal/users"
	"go.uber.org/zap"
)

const (
	kindValidation           = "validation_error"
	kindGateway              = "gateway_error"
	kindPaymentDeclined      = "payment_declined"
	kindPaymentPending       = "payment_pending"
	kindDuplicateTransaction = "duplicate_transaction"
	kindNotFound             = "not_found"
	kindForwardTransition    = "forward_transition"
	kindConfirmationMismatch = "confirmation_mismatch"
	kindEmailTaken           = "email_taken"
	kindUnauthorized         = "unauthorized"
	kindForbidden            = "forbidden"
	kindInternal             = "internal_error"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an error to a status and a body that is safe to show.
// Only validation messages are built from err itself.
func classify(err error) (int, errorBody) {
	var gwErr *phonepe.GatewayError
	switch {
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, errorBody{kindValidation, err.Error()}
	case errors.Is(err, orders.ErrGateway), errors.As(err, &gwErr):
		return http.StatusBadGateway, errorBody{kindGateway, "payment provider unavailable, please try again"}
	case errors.Is(err, orders.ErrPaymentDeclined):
		return http.StatusBadRequest, errorBody{kindPaymentDeclined, "payment failed"}
	case errors.Is(err, orders.ErrPaymentPending):
		return http.StatusAccepted, errorBody{kindPaymentPending, "payment is still being processed"}
	case errors.Is(err, orders.ErrDuplicateTransaction):
		return http.StatusConflict, errorBody{kindDuplicateTransaction, "transaction already exists"}
	case errors.Is(err, orders.ErrPendingNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, errorBody{kindNotFound, "order not found"}
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, errorBody{kindNotFound, "user not found"}
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusBadRequest, errorBody{kindForwardTransition, "delivery status can only move forward one step"}
	case errors.Is(err, orders.ErrConfirmationMismatch):
		return http.StatusBadRequest, errorBody{kindConfirmationMismatch, "payment confirmation rejected"}
	case errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict, errorBody{kindEmailTaken, "email already registered"}
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, phonepe.ErrBadSignature):
		return http.StatusUnauthorized, errorBody{kindUnauthorized, "unauthorized"}
	}
	return http.StatusInternalServerError, errorBody{kindInternal, "something went wrong"}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code, body := classify(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", body.Kind), zap.Error(err))
	} else {
		log.Info("request rejected", zap.String("kind", body.Kind), zap.Error(err))
	}
	writeJSON(w, code, body)
}
