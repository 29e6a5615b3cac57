// Package purchase charges the balance for a resource and gives the money
// back while the resource has not yet been submitted. Purchase, refund and
// submission all take the resource row lock first, so a refund and a
// submission of the same resource never both succeed.
package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
)

type resourceRepo interface {
	Create(ctx context.Context, res *domain.Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Resource, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Resource, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.ResourceStatus) error
}

type transactionRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, key string) (*domain.Transaction, error)
	ActivePurchase(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID) (*domain.Transaction, error)
}

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	ApplyDeltaTx(ctx context.Context, tx *sql.Tx, req ledger.DeltaRequest) (*domain.Transaction, error)
}

type notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Service struct {
	resources    resourceRepo
	transactions transactionRepo
	ledger       ledgerStore
	notifier     notifier
}

func NewService(resources resourceRepo, transactions transactionRepo, ledger ledgerStore, notifier notifier) *Service {
	return &Service{
		resources:    resources,
		transactions: transactions,
		ledger:       ledger,
		notifier:     notifier,
	}
}

type Request struct {
	AccountID      uuid.UUID
	ResourceID     uuid.UUID
	Amount         int64
	IdempotencyKey string
}

// Purchase debits the owner for a resource that is still a draft or awaiting
// payment. A resource holds at most one unrefunded purchase; asking again
// returns it together with ErrDuplicateOperation.
func (s *Service) Purchase(ctx context.Context, req Request) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("Purchase: %w", domain.ErrInvalidAmount)
	}

	var entry *domain.Transaction
	err := s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		res, err := s.lockOwned(ctx, tx, req.ResourceID, req.AccountID)
		if err != nil {
			return err
		}
		if !res.Status.Refundable() {
			return fmt.Errorf("resource is %s: %w", res.Status, domain.ErrInvalidStateTransition)
		}

		active, err := s.transactions.ActivePurchase(ctx, tx, res.ID)
		if err == nil {
			entry = active
			return fmt.Errorf("resource already paid: %w", domain.ErrDuplicateOperation)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		entry, err = s.ledger.ApplyDeltaTx(ctx, tx, ledger.DeltaRequest{
			AccountID:      req.AccountID,
			Amount:         -req.Amount,
			Type:           domain.TransactionTypePurchase,
			Reference:      domain.Reference{Type: domain.ReferenceResource, ID: res.ID.String()},
			IdempotencyKey: domain.ScopedKey(domain.KeyScopePurchase, req.IdempotencyKey),
			Description:    "Release payment",
		})
		return err
	})
	if err != nil {
		return entry, fmt.Errorf("Purchase: %w", err)
	}

	log.Info("resource purchased",
		"transaction_id", entry.ID,
		"resource_id", req.ResourceID,
		"account_id", req.AccountID,
		"amount", req.Amount,
	)
	return entry, nil
}

func (s *Service) lockOwned(ctx context.Context, tx *sql.Tx, resourceID, accountID uuid.UUID) (*domain.Resource, error) {
	res, err := s.resources.GetForUpdate(ctx, tx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

// CreateResource registers a draft resource for an account.
func (s *Service) CreateResource(ctx context.Context, accountID uuid.UUID) (*domain.Resource, error) {
	if accountID == uuid.Nil {
		return nil, fmt.Errorf("CreateResource: %w", &domain.FieldError{Field: "account_id"})
	}
	now := time.Now().UTC()
	res := &domain.Resource{
		ID:        uuid.New(),
		AccountID: accountID,
		Status:    domain.ResourceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("CreateResource: %w", err)
	}
	return res, nil
}

func (s *Service) GetResource(ctx context.Context, id, accountID uuid.UUID) (*domain.Resource, error) {
	res, err := s.resources.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetResource: %w", err)
	}
	if res.AccountID != accountID {
		return nil, fmt.Errorf("GetResource: %w", domain.ErrNotFound)
	}
	return res, nil
}
