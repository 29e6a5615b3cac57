package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
)

type ProviderRefundRequest struct {
	OrderID         uuid.UUID
	ProviderOrderID string
}

// HandleProviderRefund reverses a completed deposit the provider has refunded
// to the payer. The reversal is a correction entry against the deposit; the
// deposit entry itself is never touched. It fails with ErrInsufficientFunds
// when the credited money has already been spent.
func (s *Service) HandleProviderRefund(ctx context.Context, req ProviderRefundRequest) (*domain.PaymentOrder, error) {
	log := logging.FromContext(ctx)

	var result *domain.PaymentOrder
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
		case domain.PaymentOrderStatusRefunded:
			return nil
		case domain.PaymentOrderStatusCompleted:
		default:
			return fmt.Errorf("order is %s: %w", order.Status, domain.ErrInvalidStateTransition)
		}

		_, err = s.ledger.ApplyDeltaTx(ctx, tx, ledger.DeltaRequest{
			AccountID:      order.AccountID,
			Amount:         -order.Amount,
			Type:           domain.TransactionTypeCorrection,
			Reference:      domain.Reference{Type: domain.ReferencePaymentOrder, ID: order.OrderID.String()},
			IdempotencyKey: "chargeback:" + order.OrderID.String(),
			Description:    "Top-up refunded by provider",
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicateOperation) {
			return err
		}

		if err := s.orders.UpdateStatus(ctx, tx, order.OrderID, domain.PaymentOrderStatusRefunded, nil, nil); err != nil {
			return err
		}
		order.Status = domain.PaymentOrderStatusRefunded
		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("HandleProviderRefund: %w", err)
	}

	metrics.PaymentOrder(string(result.Status))
	log.Info("deposit reversed after provider refund",
		"order_id", result.OrderID,
		"account_id", result.AccountID,
		"amount", result.Amount,
	)
	return result, nil
}
