// Package payment takes money in. A checkout order is created pending, the
// provider collects the funds, and a signed confirmation credits the balance
// exactly once.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/config"
	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
)

type orderRepo interface {
	Create(ctx context.Context, o *domain.PaymentOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentOrder, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentOrder, error)
	AttachSession(ctx context.Context, id uuid.UUID, providerOrderID, confirmationURL string) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentOrderStatus, failureReason *string, completedAt *time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	ApplyDeltaTx(ctx context.Context, tx *sql.Tx, req ledger.DeltaRequest) (*domain.Transaction, error)
}

// SessionRequest is what the checkout provider needs to open a payment page.
type SessionRequest struct {
	OrderID     uuid.UUID
	Amount      int64
	Method      domain.PaymentMethod
	Description string
}

type Session struct {
	ProviderOrderID string
	Status          domain.ProviderStatus
	ConfirmationURL string
}

type checkoutProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, providerOrderID string) (*Session, error)
}

type notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Service struct {
	orders   orderRepo
	ledger   ledgerStore
	provider checkoutProvider
	notifier notifier
	config   *config.Config
	now      func() time.Time
}

func NewService(
	orders orderRepo,
	ledger ledgerStore,
	provider checkoutProvider,
	notifier notifier,
	cfg *config.Config,
) *Service {
	return &Service{
		orders:   orders,
		ledger:   ledger,
		provider: provider,
		notifier: notifier,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutRequest struct {
	AccountID uuid.UUID
	Amount    int64
	Method    domain.PaymentMethod
}

// CreateCheckout stores a pending order and opens a provider session for it.
// The provider call runs outside any transaction; when it fails the order is
// marked failed and ErrProvider is returned.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*domain.PaymentOrder, error) {
	log := logging.FromContext(ctx)

	if req.Method == "" {
		req.Method = domain.PaymentMethodCard
	}
	if err := s.validateCheckout(req); err != nil {
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}

	now := s.now()
	order := &domain.PaymentOrder{
		OrderID:   uuid.New(),
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    domain.PaymentOrderStatusPending,
		ExpiresAt: now.Add(s.config.OrderTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}
	metrics.PaymentOrder(string(order.Status))

	session, err := s.openSession(ctx, order)
	if err != nil {
		reason := err.Error()
		if markErr := s.orders.MarkFailed(ctx, order.OrderID, reason); markErr != nil {
			log.Error("failed to mark order failed", "order_id", order.OrderID, "error", markErr)
		}
		metrics.PaymentOrder(string(domain.PaymentOrderStatusFailed))
		log.Warn("checkout session failed", "order_id", order.OrderID, "error", err)
		return nil, fmt.Errorf("CreateCheckout: %w: %v", domain.ErrProvider, err)
	}

	if err := s.orders.AttachSession(ctx, order.OrderID, session.ProviderOrderID, session.ConfirmationURL); err != nil {
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}
	order.ProviderOrderID = &session.ProviderOrderID
	order.ConfirmationURL = &session.ConfirmationURL

	log.Info("checkout created",
		"order_id", order.OrderID,
		"account_id", order.AccountID,
		"amount", order.Amount,
		"method", order.Method,
		"provider_order_id", session.ProviderOrderID,
	)
	return order, nil
}

func (s *Service) openSession(ctx context.Context, order *domain.PaymentOrder) (*Session, error) {
	if s.provider == nil {
		return nil, errors.New("no checkout provider configured")
	}
	session, err := s.provider.CreateSession(ctx, SessionRequest{
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		Method:      order.Method,
		Description: "Balance top-up",
	})
	if err != nil {
		return nil, err
	}
	if session.ProviderOrderID == "" {
		return nil, errors.New("provider returned no order id")
	}
	return session, nil
}

func (s *Service) validateCheckout(req CheckoutRequest) error {
	if req.AccountID == uuid.Nil {
		return &domain.FieldError{Field: "account_id"}
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.Amount < s.config.MinDepositAmount {
		return &domain.MinimumError{Minimum: s.config.MinDepositAmount, Requested: req.Amount}
	}
	if !req.Method.IsValid() {
		return fmt.Errorf("payment method %q: %w", req.Method, domain.ErrValidation)
	}
	return nil
}

// CompletionRequest is a provider confirmation that has already been
// authenticated.
type CompletionRequest struct {
	OrderID         uuid.UUID
	ProviderOrderID string
	Status          domain.ProviderStatus
	Reason          string
}

// CompletePayment settles an order from a provider confirmation. Retries are
// safe: the order row lock serializes them and the deposit is keyed on the
// provider's order id, so the balance moves at most once. A settled order is
// returned as stored.
func (s *Service) CompletePayment(ctx context.Context, req CompletionRequest) (*domain.PaymentOrder, error) {
	log := logging.FromContext(ctx)

	var (
		result   *domain.PaymentOrder
		credited bool
	)
	err := s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.GetForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		result = order

		if req.ProviderOrderID != "" && order.ProviderOrderID != nil && *order.ProviderOrderID != req.ProviderOrderID {
			return fmt.Errorf("provider order id mismatch: %w", domain.ErrValidation)
		}

		switch order.Status {
		case domain.PaymentOrderStatusCompleted, domain.PaymentOrderStatusFailed, domain.PaymentOrderStatusRefunded:
			return nil
		}

		now := s.now()
		switch req.Status {
		case domain.ProviderStatusSucceeded:
			if order.Status == domain.PaymentOrderStatusExpired {
				log.Warn("late confirmation for expired order, crediting", "order_id", order.OrderID)
			}
			_, err := s.ledger.ApplyDeltaTx(ctx, tx, ledger.DeltaRequest{
				AccountID:      order.AccountID,
				Amount:         order.Amount,
				Type:           domain.TransactionTypeDeposit,
				Reference:      domain.Reference{Type: domain.ReferencePaymentOrder, ID: order.OrderID.String()},
				IdempotencyKey: order.DepositKey(),
				Description:    "Balance top-up",
				Metadata: map[string]any{
					"method":            order.Method,
					"provider_order_id": req.ProviderOrderID,
				},
			})
			if err != nil && !errors.Is(err, domain.ErrDuplicateOperation) {
				return err
			}
			credited = err == nil

			if err := s.orders.UpdateStatus(ctx, tx, order.OrderID, domain.PaymentOrderStatusCompleted, nil, &now); err != nil {
				return err
			}
			order.Status = domain.PaymentOrderStatusCompleted
			order.CompletedAt = &now

		case domain.ProviderStatusCanceled, domain.ProviderStatusFailed:
			if order.Status == domain.PaymentOrderStatusExpired {
				return nil
			}
			reason := req.Reason
			if reason == "" {
				reason = string(req.Status)
			}
			if err := s.orders.UpdateStatus(ctx, tx, order.OrderID, domain.PaymentOrderStatusFailed, &reason, nil); err != nil {
				return err
			}
			order.Status = domain.PaymentOrderStatusFailed
			order.FailureReason = &reason

		case domain.ProviderStatusPending:
			return nil

		default:
			return fmt.Errorf("provider status %q: %w", req.Status, domain.ErrValidation)
		}
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CompletePayment: %w", err)
	}

	metrics.PaymentOrder(string(result.Status))
	if credited {
		log.Info("deposit credited",
			"order_id", result.OrderID,
			"account_id", result.AccountID,
			"amount", result.Amount,
		)
		s.notify(ctx, domain.NotificationDepositCompleted, result)
	}
	return result, nil
}

// CheckStatus reads an order without changing it. A pending order past its
// deadline reads as expired.
func (s *Service) CheckStatus(ctx context.Context, orderID, accountID uuid.UUID) (*domain.PaymentOrder, error) {
	order, err := s.owned(ctx, orderID, accountID)
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}
	order.Status = order.EffectiveStatus(s.now())
	return order, nil
}

// Sync asks the provider for the session state and applies it through the
// same path a webhook takes. It covers confirmations that never arrived.
func (s *Service) Sync(ctx context.Context, orderID, accountID uuid.UUID) (*domain.PaymentOrder, error) {
	order, err := s.owned(ctx, orderID, accountID)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}
	if order.Status != domain.PaymentOrderStatusPending && order.Status != domain.PaymentOrderStatusExpired {
		return order, nil
	}
	if order.ProviderOrderID == nil || s.provider == nil {
		order.Status = order.EffectiveStatus(s.now())
		return order, nil
	}

	session, err := s.provider.GetSession(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, fmt.Errorf("Sync: %w: %v", domain.ErrProvider, err)
	}
	if session.Status == domain.ProviderStatusPending {
		order.Status = order.EffectiveStatus(s.now())
		return order, nil
	}

	updated, err := s.CompletePayment(ctx, CompletionRequest{
		OrderID:         order.OrderID,
		ProviderOrderID: *order.ProviderOrderID,
		Status:          session.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("Sync: %w", err)
	}
	return updated, nil
}

func (s *Service) ListOrders(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentOrder, error) {
	if limit <= 0 {
		limit = 20
	}
	orders, err := s.orders.ListByAccount(ctx, accountID, min(limit, 100), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("ListOrders: %w", err)
	}
	now := s.now()
	for i := range orders {
		orders[i].Status = orders[i].EffectiveStatus(now)
	}
	return orders, nil
}

func (s *Service) owned(ctx context.Context, orderID, accountID uuid.UUID) (*domain.PaymentOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) notify(ctx context.Context, t domain.NotificationType, o *domain.PaymentOrder) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, domain.Notification{
		Type:        t,
		AccountID:   o.AccountID,
		Amount:      o.Amount,
		ReferenceID: o.OrderID.String(),
		CreatedAt:   s.now(),
	})
}
