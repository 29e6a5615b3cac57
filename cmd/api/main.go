package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/josh-kwaku/label-ledger/internal/auth"
	"github.com/josh-kwaku/label-ledger/internal/config"
	"github.com/josh-kwaku/label-ledger/internal/handler"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
	"github.com/josh-kwaku/label-ledger/internal/middleware"
	"github.com/josh-kwaku/label-ledger/internal/repository"
	"github.com/josh-kwaku/label-ledger/internal/service"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
	"github.com/josh-kwaku/label-ledger/internal/service/purchase"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

//go:embed openapi.yaml
var openAPISpec []byte

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		ConnectAttempts:  cfg.DBConnectAttempts,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer db.Close()

	health := []handler.Dependency{{Name: "database", Ping: db.PingContext}}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		defer rdb.Close()
		health = append(health, handler.Dependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		logger.Warn("REDIS_URL not set, finance notifications are disabled")
	}

	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	orderRepo := repository.NewPaymentOrderRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	notifier := service.NewNotifier(rdb, cfg.NotificationQueue)
	payouts := service.NewPayoutClient(cfg.PayoutProviderURL)
	checkout := service.NewCheckoutClient(cfg.ProviderURL, cfg.ProviderShopID, cfg.ProviderSecretKey, cfg.PaymentReturnURL)

	store := ledger.NewStore(db, accountRepo, transactionRepo)
	withdrawals := withdrawal.NewService(withdrawalRepo, store, transactionRepo, payouts, notifier, cfg)
	payments := payment.NewService(orderRepo, store, checkout, notifier, cfg)
	purchases := purchase.NewService(resourceRepo, transactionRepo, store, notifier)

	processor := service.NewWebhookProcessor(webhookRepo, payments, logger, cfg.WebhookPollInterval)
	stopProcessor := processor.Run(ctx)
	defer stopProcessor()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	sweeper := service.NewSweeper(orderRepo, idempotencyRepo, logger)
	if err := sweeper.Schedule(ctx, cfg.OrderSweepSchedule, cfg.CachePurgeSchedule); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	err = sweeper.AddFunc(cfg.CachePurgeSchedule, "rate limiter prune", func() {
		if n := limiter.Prune(time.Hour); n > 0 {
			logger.Info("pruned idle rate limiters", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	validator := handler.NewValidator()
	h := handlers{
		health:      handler.NewHealthHandler(health...),
		docs:        handler.NewDocsHandler(openAPISpec),
		webhook:     handler.NewWebhookHandler(webhookRepo, cfg.WebhookSecret),
		ledger:      handler.NewLedgerHandler(store),
		withdrawals: handler.NewWithdrawalHandler(withdrawals, validator),
		payments:    handler.NewPaymentHandler(payments, validator),
		purchases:   handler.NewPurchaseHandler(purchases, validator),
		admin:       handler.NewAdminHandler(withdrawals, store, validator),
	}
	if cfg.AppEnv == "development" {
		h.devAuth = handler.NewAuthHandler(cfg.JWTSecret, 24*time.Hour, validator)
	}

	account := chain(
		middleware.Auth(cfg.JWTSecret),
		limiter.Handler,
		middleware.Idempotency(idempotencyRepo),
	)
	admin := chain(
		middleware.Auth(cfg.JWTSecret),
		middleware.RequireRole(auth.RoleAdmin, auth.RoleOwner),
		limiter.Handler,
		middleware.Idempotency(idempotencyRepo),
	)

	mux := http.NewServeMux()
	registerRoutes(mux, h, account, admin)

	root := chain(
		middleware.RequestID,
		metrics.Instrument(mux),
		middleware.Logging,
		middleware.Recovery,
	)(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("run: shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
