package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
)

// Submit moves a paid resource out of the refundable window. It takes the
// same row lock as RequestRefund: whichever commits first wins and the other
// sees the outcome.
func (s *Service) Submit(ctx context.Context, resourceID, accountID uuid.UUID) (*domain.Resource, error) {
	var res *domain.Resource
	err := s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = s.lockOwned(ctx, tx, resourceID, accountID)
		if err != nil {
			return err
		}
		if res.Status == domain.ResourceStatusSubmitted {
			return nil
		}
		if !res.Status.Refundable() {
			return fmt.Errorf("resource is %s: %w", res.Status, domain.ErrInvalidStateTransition)
		}

		if _, err := s.transactions.ActivePurchase(ctx, tx, res.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("resource has no active payment: %w", domain.ErrInvalidStateTransition)
			}
			return err
		}

		if err := s.resources.UpdateStatus(ctx, tx, res.ID, domain.ResourceStatusSubmitted); err != nil {
			return err
		}
		res.Status = domain.ResourceStatusSubmitted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	logging.FromContext(ctx).Info("resource submitted", "resource_id", res.ID, "account_id", accountID)
	return res, nil
}
