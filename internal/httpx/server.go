package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestTimeout stays above the provider timeout so a slow payment call
// still gets its own answer to the client.
const requestTimeout = 30 * time.Second

// NewRouter builds the base router. limiter may be nil.
func NewRouter(log *zap.Logger, limiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(metrics.Middleware)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}
