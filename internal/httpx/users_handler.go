package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/users"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Accounts interface {
	Register(ctx context.Context, req users.RegisterRequest) (users.User, error)
	Login(ctx context.Context, req users.LoginRequest) (users.CurrentUser, error)
}

type UsersHandler struct {
	Accounts Accounts
	Log      *zap.Logger
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Post("/users/register", h.register)
	r.Post("/users/login", h.login)
}

func (h *UsersHandler) register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: invalid json", orders.ErrValidation))
		return
	}
	u, err := h.Accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UsersHandler) login(w http.ResponseWriter, r *http.Request) {
	var req users.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, h.Log, fmt.Errorf("%w: invalid json", orders.ErrValidation))
		return
	}
	cur, err := h.Accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}
