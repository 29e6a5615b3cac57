package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/label-ledger/internal/logging"
)

type config struct {
	Port          int    `env:"PORT" envDefault:"8081"`
	WebhookURL    string `env:"WEBHOOK_URL" envDefault:"http://localhost:8080/api/v1/webhooks/provider"`
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`
	ShopID        string `env:"PROVIDER_SHOP_ID"`
	SecretKey     string `env:"PROVIDER_SECRET_KEY"`
	PublicURL     string `env:"PUBLIC_URL" envDefault:"http://localhost:8081"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	p := newProvider(cfg, logger)
	mux := http.NewServeMux()
	p.routes(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock provider started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
