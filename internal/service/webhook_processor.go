package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
)

const (
	webhookBatchSize = 10
	webhookLease     = 30 * time.Second
)

type webhookRepo interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]domain.WebhookEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus) error
}

type paymentIntake interface {
	CompletePayment(ctx context.Context, req payment.CompletionRequest) (*domain.PaymentOrder, error)
	HandleProviderRefund(ctx context.Context, req payment.ProviderRefundRequest) (*domain.PaymentOrder, error)
}

// WebhookProcessor drains the provider event inbox. Events that can never
// apply are marked failed; transient errors leave the event pending so the
// next claim after the lease retries it.
type WebhookProcessor struct {
	webhooks webhookRepo
	payments paymentIntake
	logger   *slog.Logger
	interval time.Duration
}

func NewWebhookProcessor(webhooks webhookRepo, payments paymentIntake, logger *slog.Logger, interval time.Duration) *WebhookProcessor {
	return &WebhookProcessor{
		webhooks: webhooks,
		payments: payments,
		logger:   logger,
		interval: interval,
	}
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

// Run starts the polling loop in the background. The returned stop cancels
// the loop and blocks until the batch in progress has returned.
func (p *WebhookProcessor) Run(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// ProcessPending handles one batch of claimed events and reports how many it
// claimed.
func (p *WebhookProcessor) ProcessPending(ctx context.Context) int {
	events, err := p.webhooks.ClaimPending(ctx, webhookBatchSize, webhookLease)
	if err != nil {
		p.logger.Error("failed to claim pending webhook events", "error", err)
		return 0
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error("failed to process webhook event",
				"webhook_event_id", event.ID,
				"attempts", event.Attempts,
				"error", err,
			)
		}
	}
	return len(events)
}

func (p *WebhookProcessor) processEvent(ctx context.Context, event domain.WebhookEvent) error {
	log := p.logger.With("webhook_event_id", event.ID, "event_type", event.EventType)
	ctx = logging.WithLogger(ctx, log)

	var payload domain.ProviderEvent
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		log.Error("malformed webhook payload", "error", err)
		return p.finish(ctx, event, domain.WebhookEventStatusFailed)
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		log.Error("invalid order_id in webhook", "order_id", payload.OrderID)
		return p.finish(ctx, event, domain.WebhookEventStatusFailed)
	}

	switch event.EventType {
	case domain.WebhookEventTypePaymentSucceeded:
		_, err = p.payments.CompletePayment(ctx, payment.CompletionRequest{
			OrderID:         orderID,
			ProviderOrderID: payload.ProviderOrderID,
			Status:          domain.ProviderStatusSucceeded,
		})
	case domain.WebhookEventTypePaymentCanceled:
		_, err = p.payments.CompletePayment(ctx, payment.CompletionRequest{
			OrderID:         orderID,
			ProviderOrderID: payload.ProviderOrderID,
			Status:          domain.ProviderStatusCanceled,
			Reason:          payload.Reason,
		})
	case domain.WebhookEventTypeRefundSucceeded:
		_, err = p.payments.HandleProviderRefund(ctx, payment.ProviderRefundRequest{
			OrderID:         orderID,
			ProviderOrderID: payload.ProviderOrderID,
		})
	default:
		log.Error("unknown webhook event type")
		return p.finish(ctx, event, domain.WebhookEventStatusFailed)
	}

	if err != nil {
		if permanent(err) {
			log.Warn("webhook event cannot be applied", "order_id", orderID, "error", err)
			return p.finish(ctx, event, domain.WebhookEventStatusFailed)
		}
		metrics.WebhookEvent(string(event.EventType), "retry")
		return fmt.Errorf("processEvent: %w", err)
	}

	log.Info("webhook event applied", "order_id", orderID)
	return p.finish(ctx, event, domain.WebhookEventStatusDispatched)
}

func (p *WebhookProcessor) finish(ctx context.Context, event domain.WebhookEvent, status domain.WebhookEventStatus) error {
	metrics.WebhookEvent(string(event.EventType), string(status))
	if err := p.webhooks.UpdateStatus(ctx, event.ID, status); err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	return nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidStateTransition) ||
		errors.Is(err, domain.ErrInsufficientFunds) ||
		errors.Is(err, domain.ErrIdempotencyKeyReused)
}
