package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment attempts by stage and result",
		},
		[]string{"stage", "result"},
	)

	ordersConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Pending orders promoted into the ledger",
	})

	pendingExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_orders_expired_total",
		Help: "Pending orders removed by the expiry sweep",
	})

	broadcastDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_broadcast_dropped_total",
		Help: "Status updates dropped for slow or closed observers",
	})

	observersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_observers",
		Help: "Connected realtime observers",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, paymentsTotal,
		ordersConfirmedTotal, pendingExpiredTotal, broadcastDroppedTotal, observersGauge)
}

// Middleware records request count and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler { return promhttp.Handler() }

func RecordPayment(stage, result string) { paymentsTotal.WithLabelValues(stage, result).Inc() }

func RecordConfirmed() { ordersConfirmedTotal.Inc() }

func RecordExpired(n int) { pendingExpiredTotal.Add(float64(n)) }

func RecordBroadcastDropped() { broadcastDroppedTotal.Inc() }

func ObserverConnected() { observersGauge.Inc() }

func ObserverDisconnected() { observersGauge.Dec() }
