package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/josh-kwaku/label-ledger/internal/metrics"
)

type orderExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type cachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs the periodic housekeeping jobs: expiring checkout orders past
// their deadline and dropping stale idempotency cache entries.
type Sweeper struct {
	orders orderExpirer
	cache  cachePurger
	logger *slog.Logger
	cron   *cron.Cron
}

func NewSweeper(orders orderExpirer, cache cachePurger, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		orders: orders,
		cache:  cache,
		logger: logger,
		cron:   cron.New(),
	}
}

// Schedule registers both jobs. Schedules use cron syntax or descriptors such
// as "@every 1m".
func (s *Sweeper) Schedule(ctx context.Context, orderSchedule, cacheSchedule string) error {
	if _, err := s.cron.AddFunc(orderSchedule, func() { s.ExpireOrders(ctx) }); err != nil {
		return fmt.Errorf("Schedule: order sweep %q: %w", orderSchedule, err)
	}
	if _, err := s.cron.AddFunc(cacheSchedule, func() { s.PurgeIdempotencyCache(ctx) }); err != nil {
		return fmt.Errorf("Schedule: cache purge %q: %w", cacheSchedule, err)
	}
	return nil
}

// AddFunc schedules an extra housekeeping job.
func (s *Sweeper) AddFunc(schedule, name string, fn func()) error {
	if _, err := s.cron.AddFunc(schedule, fn); err != nil {
		return fmt.Errorf("AddFunc: %s %q: %w", name, schedule, err)
	}
	return nil
}

func (s *Sweeper) Start() {
	s.logger.Info("sweeper started", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) ExpireOrders(ctx context.Context) int64 {
	n, err := s.orders.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("order expiry sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		metrics.OrdersExpired(n)
		s.logger.Info("expired checkout orders", "count", n)
	}
	return n
}

func (s *Sweeper) PurgeIdempotencyCache(ctx context.Context) int64 {
	n, err := s.cache.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("idempotency cache purge failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("purged idempotency cache entries", "count", n)
	}
	return n
}
