package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/cart"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/lock"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/orders"
	"github.com/example/ec-checkout/internal/outbox"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/payment/fake"
	"github.com/example/ec-checkout/internal/payment/stripe"
	"github.com/example/ec-checkout/internal/tracing"
)

const serviceName = "checkout-api"

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracing, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TracingSampleRate,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}
	log.Info("connected to PostgreSQL, migrations applied")

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	m := metrics.New(prometheus.DefaultRegisterer)
	carts := store.NewPostgresCartStore(db)
	orderStore := store.NewPostgresOrderStore(db)

	co := checkout.NewService(checkout.ServiceConfig{
		Orders:   orderStore,
		Pricing:  carts,
		Locker:   locker,
		Digester: auth.NewAuthCodeHasher(cfg.AuthCodeCost),
		Metrics:  m,
		Logger:   log,
	})
	pay := payment.NewService(payment.ServiceConfig{
		Orders:    orderStore,
		Gateway:   newGateway(cfg, m, log),
		Locker:    locker,
		Currency:  cfg.PaymentCurrency,
		MinorUnit: cfg.PaymentMinor,
		Timeout:   cfg.GatewayTimeout,
		Metrics:   m,
		Logger:    log,
	})
	handlers := api.NewHandlers(
		cart.NewService(carts, co.Aggregator(), log),
		co,
		orders.NewService(orderStore, log),
		pay,
		log,
	)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := outbox.NewRelay(store.NewPostgresOutboxStore(db), producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, m, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, jwtService, m, metrics.Handler(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", cfg.HTTPAddr), slog.String("lock_backend", cfg.LockBackend))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("error", err))
	}
	wg.Wait()
	return nil
}

func newLocker(ctx context.Context, cfg *config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewMemoryLocker(cfg.LockWait), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	return lock.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait), func() { _ = client.Close() }, nil
}

// newGateway falls back to the in-memory gateway when no key is set. Config rejects a
// missing key in production.
func newGateway(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) payment.Gateway {
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, using fake payment gateway")
		return fake.NewGateway()
	}
	return stripe.NewClient(stripe.Config{
		SecretKey:  cfg.StripeSecretKey,
		BaseURL:    cfg.StripeBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.GatewayTimeout},
		Metrics:    m,
		Logger:     log,
	})
}
