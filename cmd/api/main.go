package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/auth"
	"github.com/ariefcatur/go-food-orders/internal/checkout"
	"github.com/ariefcatur/go-food-orders/internal/config"
	"github.com/ariefcatur/go-food-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-food-orders/internal/kafka"
	"github.com/ariefcatur/go-food-orders/internal/logx"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/phonepe"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/ariefcatur/go-food-orders/internal/realtime"
	"github.com/ariefcatur/go-food-orders/internal/redisx"
	"github.com/ariefcatur/go-food-orders/internal/users"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if cfg.SaltKey == "" {
		return errors.New("PHONEPE_SALT_KEY is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	hub := realtime.NewHub(32, log)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	gateway := phonepe.NewClient(phonepe.Config{
		MerchantID: cfg.MerchantID,
		SaltKey:    cfg.SaltKey,
		SaltIndex:  cfg.SaltIndex,
		BaseURL:    cfg.PhonePeBaseURL,
		BackendURL: cfg.BackendURL,
		Timeout:    cfg.PhonePeTimeout,
	}, log)
	pending := &orders.PendingStore{Redis: rdb, TTL: cfg.PendingTTL}

	svc := &checkout.Service{
		Gateway:         gateway,
		Pending:         pending,
		Ledger:          &orders.Ledger{DB: db},
		Cache:           &orders.OrderCache{Redis: rdb},
		Hub:             hub,
		Events:          prod,
		Log:             log.Named("checkout"),
		ServiceName:     cfg.ServiceName,
		ProviderTimeout: cfg.ProviderTimeout,
	}
	sweeper := &checkout.Sweeper{
		Pending:     pending,
		Events:      prod,
		Log:         log.Named("sweeper"),
		TTL:         cfg.PendingTTL,
		Interval:    cfg.PendingSweepInterval,
		ServiceName: cfg.ServiceName,
	}
	go sweeper.Run(ctx)

	limiter := httpx.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	go limiter.Cleanup(ctx, 5*time.Minute, 30*time.Minute)

	// Router & handlers
	router := httpx.NewRouter(log, limiter)
	authn := &httpx.Authenticator{Verifier: issuer}
	oh := &httpx.OrdersHandler{
		Checkout:    svc,
		Callbacks:   gateway,
		Auth:        authn,
		FrontendURL: cfg.FrontendURL,
		Log:         log.Named("http"),
	}
	oh.Register(router)
	uh := &httpx.UsersHandler{
		Accounts: &users.Service{Store: &users.Repo{DB: db}, Tokens: issuer, Log: log.Named("users")},
		Log:      log.Named("http"),
	}
	uh.Register(router)
	router.Handle("/ws", &realtime.Server{
		Hub:      hub,
		Updater:  svc,
		Verifier: issuer,
		Log:      log,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin(cfg.FrontendURL),
		},
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		log.Error("listen", zap.Error(err))
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	hub.Close()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // stop accepting, flush queued events
	cancel()          // stop sweeper and producer loop
	prod.WaitClosed() // drain
	return nil
}

// sameOrigin admits the frontend and non-browser clients.
func sameOrigin(frontend string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == frontend || origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
