package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Checkout provider credentials and the secret its callbacks are signed with.
	ProviderURL       string `env:"PROVIDER_URL" envDefault:"http://mock-provider:8081"`
	ProviderShopID    string `env:"PROVIDER_SHOP_ID"`
	ProviderSecretKey string `env:"PROVIDER_SECRET_KEY"`
	PaymentReturnURL  string `env:"PAYMENT_RETURN_URL" envDefault:"http://localhost:3000/cabinet/finance"`
	WebhookSecret     string `env:"WEBHOOK_SECRET,required"`
	PayoutProviderURL string `env:"PAYOUT_PROVIDER_URL"`

	// Amounts are in minor units.
	MinWithdrawalAmount int64 `env:"MIN_WITHDRAWAL_AMOUNT" envDefault:"100000"`
	MinDepositAmount    int64 `env:"MIN_DEPOSIT_AMOUNT" envDefault:"10000"`

	OrderTTL            time.Duration `env:"ORDER_TTL" envDefault:"30m"`
	OrderSweepSchedule  string        `env:"ORDER_SWEEP_SCHEDULE" envDefault:"@every 1m"`
	CachePurgeSchedule  string        `env:"CACHE_PURGE_SCHEDULE" envDefault:"@hourly"`
	WebhookPollInterval time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"2s"`

	RedisURL          string `env:"REDIS_URL"`
	NotificationQueue string `env:"NOTIFICATION_QUEUE" envDefault:"finance_notifications"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
	DBConnectAttempts  int `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MinWithdrawalAmount <= 0 {
		return fmt.Errorf("MIN_WITHDRAWAL_AMOUNT must be positive")
	}
	if c.MinDepositAmount <= 0 {
		return fmt.Errorf("MIN_DEPOSIT_AMOUNT must be positive")
	}
	if c.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL must be positive")
	}
	return nil
}
