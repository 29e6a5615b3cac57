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

type RefundRequest struct {
	AccountID uuid.UUID
	PaymentID uuid.UUID
}

// RequestRefund returns a purchase to the balance while its resource is still
// a draft or awaiting payment, and fails with ErrRefundNotAllowed otherwise.
// Refunding the same purchase twice returns the first refund.
func (s *Service) RequestRefund(ctx context.Context, req RefundRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	paid, err := s.transactions.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}
	if paid.AccountID != req.AccountID || paid.Type != domain.TransactionTypePurchase {
		return nil, fmt.Errorf("RequestRefund: %w", domain.ErrNotFound)
	}
	if paid.Reference.Type != domain.ReferenceResource {
		return nil, fmt.Errorf("RequestRefund: purchase has no resource: %w", domain.ErrRefundNotAllowed)
	}
	resourceID, err := uuid.Parse(paid.Reference.ID)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: resource id %q: %w", paid.Reference.ID, domain.ErrRefundNotAllowed)
	}

	var (
		entry    *domain.Transaction
		replayed bool
	)
	err = s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		res, err := s.resources.GetForUpdate(ctx, tx, resourceID)
		if err != nil {
			return err
		}

		key := "refund:" + paid.ID.String()
		prior, err := s.transactions.GetByIdempotencyKey(ctx, tx, paid.AccountID, key)
		if err == nil {
			entry, replayed = prior, true
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if !res.Status.Refundable() {
			return fmt.Errorf("resource is %s: %w", res.Status, domain.ErrRefundNotAllowed)
		}

		entry, err = s.ledger.ApplyDeltaTx(ctx, tx, ledger.DeltaRequest{
			AccountID:      paid.AccountID,
			Amount:         -paid.Amount,
			Type:           domain.TransactionTypeRefund,
			Reference:      domain.Reference{Type: domain.ReferenceTransaction, ID: paid.ID.String()},
			IdempotencyKey: key,
			Description:    "Release payment refund",
			Metadata: map[string]any{
				"original_transaction_id": paid.ID.String(),
				"resource_id":             resourceID.String(),
			},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}

	if replayed {
		log.Info("idempotent replay", "transaction_id", entry.ID, "payment_id", paid.ID)
		return entry, nil
	}

	log.Info("purchase refunded",
		"transaction_id", entry.ID,
		"payment_id", paid.ID,
		"resource_id", resourceID,
		"amount", entry.Amount,
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, domain.Notification{
			Type:        domain.NotificationRefundCompleted,
			AccountID:   entry.AccountID,
			Amount:      entry.Amount,
			ReferenceID: paid.ID.String(),
			CreatedAt:   time.Now().UTC(),
		})
	}
	return entry, nil
}
