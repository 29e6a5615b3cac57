package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
)

var manualEntryTypes = map[domain.TransactionType]bool{
	domain.TransactionTypeBonus:      true,
	domain.TransactionTypePayout:     true,
	domain.TransactionTypeCorrection: true,
	domain.TransactionTypeRefund:     true,
}

type ManualEntryRequest struct {
	AdminID        uuid.UUID
	AccountID      uuid.UUID
	Type           domain.TransactionType
	Amount         int64
	Description    string
	AdminComment   string
	CorrectsID     *uuid.UUID
	IdempotencyKey string
}

// ManualEntry appends an operator-initiated entry. A correction names the
// entry it corrects; the original stays untouched.
func (s *Store) ManualEntry(ctx context.Context, req ManualEntryRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if !manualEntryTypes[req.Type] {
		return nil, fmt.Errorf("ManualEntry: type %q cannot be created manually: %w", req.Type, domain.ErrValidation)
	}
	if req.Type == domain.TransactionTypeCorrection && req.CorrectsID == nil {
		return nil, fmt.Errorf("ManualEntry: corrects_id: %w", &domain.FieldError{Field: "corrects_id"})
	}

	ref := domain.Reference{}
	if req.CorrectsID != nil {
		original, err := s.transactions.GetByID(ctx, *req.CorrectsID)
		if err != nil {
			return nil, fmt.Errorf("ManualEntry: corrected entry: %w", err)
		}
		if original.AccountID != req.AccountID {
			return nil, fmt.Errorf("ManualEntry: corrected entry belongs to another account: %w", domain.ErrValidation)
		}
		ref = domain.Reference{Type: domain.ReferenceTransaction, ID: original.ID.String()}
	}

	metadata := map[string]any{"admin_id": req.AdminID.String()}
	if req.AdminComment != "" {
		metadata["admin_comment"] = req.AdminComment
	}

	entry, err := s.ApplyDelta(ctx, DeltaRequest{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Type:           req.Type,
		Reference:      ref,
		IdempotencyKey: domain.ScopedKey(domain.KeyScopeManual, req.IdempotencyKey),
		Description:    req.Description,
		Metadata:       metadata,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) && entry != nil {
			log.Info("idempotent replay", "transaction_id", entry.ID, "idempotency_key", req.IdempotencyKey)
			return entry, nil
		}
		return nil, fmt.Errorf("ManualEntry: %w", err)
	}

	log.Info("manual ledger entry created",
		"transaction_id", entry.ID,
		"account_id", req.AccountID,
		"type", req.Type,
		"amount", req.Amount,
		"admin_id", req.AdminID,
	)
	return entry, nil
}
