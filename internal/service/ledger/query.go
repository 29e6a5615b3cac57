package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// History returns one page of the account's log, newest first.
func (s *Store) History(ctx context.Context, accountID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	if f.Type != "" && !f.Type.IsValid() {
		return nil, 0, fmt.Errorf("History: type %q: %w", f.Type, domain.ErrValidation)
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)

	entries, total, err := s.transactions.Query(ctx, accountID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}

// Summary adds totals derived from the log to the current balance. Both
// come from one snapshot.
func (s *Store) Summary(ctx context.Context, accountID uuid.UUID) (domain.BalanceSummary, error) {
	var (
		bal  domain.Balance
		sums map[domain.TransactionType]int64
	)
	err := s.readSnapshot(ctx, func(tx *sql.Tx) error {
		var err error
		if bal, err = s.balanceInTx(ctx, tx, accountID); err != nil {
			return err
		}
		sums, err = s.transactions.SumByType(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return domain.BalanceSummary{}, fmt.Errorf("Summary: %w", err)
	}

	return domain.BalanceSummary{
		Balance:        bal,
		TotalDeposited: sums[domain.TransactionTypeDeposit],
		TotalWithdrawn: -sums[domain.TransactionTypeWithdrawal],
		TotalSpent:     -sums[domain.TransactionTypePurchase],
		TotalRefunded:  sums[domain.TransactionTypeRefund],
	}, nil
}

// Reconcile replays the log and compares it with the stored figures, reading
// both from one snapshot so a concurrent commit cannot show up on one side
// only.
func (s *Store) Reconcile(ctx context.Context, accountID uuid.UUID) (domain.Reconciliation, error) {
	rec := domain.Reconciliation{AccountID: accountID}
	err := s.readSnapshot(ctx, func(tx *sql.Tx) error {
		bal, err := s.balanceInTx(ctx, tx, accountID)
		if err != nil {
			return err
		}
		rec.Balance, rec.Frozen = bal.Balance, bal.Frozen

		rec.ReplayedBalance, rec.ReplayedFrozen, rec.EntryCount, err = s.transactions.Replay(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return domain.Reconciliation{}, fmt.Errorf("Reconcile: %w", err)
	}
	return rec, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
