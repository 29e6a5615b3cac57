// Package ledger owns every balance figure. Each mutation locks the account
// row, checks it, appends a log entry and writes the new figures inside one
// database transaction.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	EnsureExists(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, balance, frozen, newVersion int64) error
}

type transactionRepo interface {
	Append(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, key string) (*domain.Transaction, error)
	Query(ctx context.Context, accountID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, int, error)
	Replay(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (balance, frozen int64, count int, err error)
	SumByType(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (map[domain.TransactionType]int64, error)
}

type Store struct {
	db           *sql.DB
	accounts     accountRepo
	transactions transactionRepo
}

func NewStore(db *sql.DB, accounts accountRepo, transactions transactionRepo) *Store {
	return &Store{db: db, accounts: accounts, transactions: transactions}
}

// DeltaRequest describes one balance change. Amount is signed: credits are
// positive, debits negative.
type DeltaRequest struct {
	AccountID      uuid.UUID
	Amount         int64
	Type           domain.TransactionType
	Reference      domain.Reference
	IdempotencyKey string
	Description    string
	Metadata       map[string]any
}

// HoldRequest moves funds between available and frozen, or realizes a hold.
type HoldRequest struct {
	AccountID   uuid.UUID
	Amount      int64
	Reference   domain.Reference
	Description string
}

// WithinTx runs fn in a database transaction and commits when it returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("WithinTx: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("WithinTx: commit: %w", err)
	}
	return nil
}

// readSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// statement in fn sees the same committed state.
func (s *Store) readSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("readSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) balanceInTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (domain.Balance, error) {
	acct, err := s.accounts.GetInTx(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Balance{AccountID: accountID}, nil
		}
		return domain.Balance{}, err
	}
	return acct.Snapshot(), nil
}

// GetBalance never creates a row; an account with no history reads as zero.
func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Balance, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Balance{AccountID: accountID}, nil
		}
		return domain.Balance{}, fmt.Errorf("GetBalance: %w", err)
	}
	return acct.Snapshot(), nil
}

// ApplyDelta changes an account's balance in its own transaction. When the
// idempotency key was already consumed it returns the earlier entry together
// with ErrDuplicateOperation.
func (s *Store) ApplyDelta(ctx context.Context, req DeltaRequest) (*domain.Transaction, error) {
	var entry *domain.Transaction
	err := s.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.ApplyDeltaTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return entry, err
	}
	return entry, nil
}

func (s *Store) ApplyDeltaTx(ctx context.Context, tx *sql.Tx, req DeltaRequest) (*domain.Transaction, error) {
	if err := validateDelta(req); err != nil {
		metrics.LedgerMutation(string(req.Type), "rejected")
		return nil, fmt.Errorf("ApplyDelta: %w", err)
	}

	acct, err := s.lock(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("ApplyDelta: %w", err)
	}

	if req.IdempotencyKey != "" {
		prior, err := s.transactions.GetByIdempotencyKey(ctx, tx, req.AccountID, req.IdempotencyKey)
		if err == nil {
			if !sameOperation(prior, req) {
				metrics.LedgerMutation(string(req.Type), "rejected")
				return nil, fmt.Errorf("ApplyDelta: key %q held by %s entry %s: %w",
					req.IdempotencyKey, prior.Type, prior.ID, domain.ErrIdempotencyKeyReused)
			}
			metrics.LedgerMutation(string(req.Type), "duplicate")
			return prior, fmt.Errorf("ApplyDelta: key %q: %w", req.IdempotencyKey, domain.ErrDuplicateOperation)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ApplyDelta: %w", err)
		}
	}

	if req.Amount < 0 && acct.Available()+req.Amount < 0 {
		metrics.LedgerMutation(string(req.Type), "rejected")
		return nil, fmt.Errorf("ApplyDelta: %w", &domain.FundsError{
			Err:       domain.ErrInsufficientFunds,
			Available: acct.Available(),
			Requested: -req.Amount,
		})
	}

	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("ApplyDelta: %w", err)
	}

	entry := newEntry(acct, req.Type, req.Amount, 0, req.Reference, req.Description)
	entry.Metadata = metadata
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		entry.IdempotencyKey = &key
	}

	if err := s.record(ctx, tx, acct, entry); err != nil {
		return nil, fmt.Errorf("ApplyDelta: %w", err)
	}
	return entry, nil
}

// sameOperation reports whether prior is the entry req would have produced.
// A key only replays the operation that first claimed it.
func sameOperation(prior *domain.Transaction, req DeltaRequest) bool {
	return prior.Type == req.Type &&
		prior.Amount == req.Amount &&
		prior.Reference == req.Reference
}

func (s *Store) Freeze(ctx context.Context, req HoldRequest) (*domain.Transaction, error) {
	var entry *domain.Transaction
	err := s.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.FreezeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// FreezeTx reserves amount out of available funds and logs a freeze entry.
func (s *Store) FreezeTx(ctx context.Context, tx *sql.Tx, req HoldRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Freeze: %w", domain.ErrInvalidAmount)
	}

	acct, err := s.lock(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Freeze: %w", err)
	}

	if req.Amount > acct.Available() {
		metrics.LedgerMutation(string(domain.TransactionTypeFreeze), "rejected")
		return nil, fmt.Errorf("Freeze: %w", &domain.FundsError{
			Err:       domain.ErrInsufficientFunds,
			Available: acct.Available(),
			Requested: req.Amount,
		})
	}

	entry := newEntry(acct, domain.TransactionTypeFreeze, 0, req.Amount, req.Reference, req.Description)
	if err := s.record(ctx, tx, acct, entry); err != nil {
		return nil, fmt.Errorf("Freeze: %w", err)
	}
	return entry, nil
}

func (s *Store) Unfreeze(ctx context.Context, req HoldRequest) (*domain.Transaction, error) {
	var entry *domain.Transaction
	err := s.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.UnfreezeTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UnfreezeTx returns a reservation to available funds.
func (s *Store) UnfreezeTx(ctx context.Context, tx *sql.Tx, req HoldRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Unfreeze: %w", domain.ErrInvalidAmount)
	}

	acct, err := s.lock(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Unfreeze: %w", err)
	}

	if req.Amount > acct.FrozenBalance {
		metrics.LedgerMutation(string(domain.TransactionTypeUnfreeze), "rejected")
		return nil, fmt.Errorf("Unfreeze: %w", &domain.FundsError{
			Err:       domain.ErrInsufficientFrozenFunds,
			Available: acct.FrozenBalance,
			Requested: req.Amount,
		})
	}

	entry := newEntry(acct, domain.TransactionTypeUnfreeze, 0, -req.Amount, req.Reference, req.Description)
	if err := s.record(ctx, tx, acct, entry); err != nil {
		return nil, fmt.Errorf("Unfreeze: %w", err)
	}
	return entry, nil
}

// SettleTx turns a reservation into a realized debit: balance and frozen both
// drop by amount and available is unchanged.
func (s *Store) SettleTx(ctx context.Context, tx *sql.Tx, req HoldRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("Settle: %w", domain.ErrInvalidAmount)
	}

	acct, err := s.lock(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}

	if req.Amount > acct.FrozenBalance {
		metrics.LedgerMutation(string(domain.TransactionTypeWithdrawal), "rejected")
		return nil, fmt.Errorf("Settle: %w", &domain.FundsError{
			Err:       domain.ErrInsufficientFrozenFunds,
			Available: acct.FrozenBalance,
			Requested: req.Amount,
		})
	}

	entry := newEntry(acct, domain.TransactionTypeWithdrawal, -req.Amount, -req.Amount, req.Reference, req.Description)
	if err := s.record(ctx, tx, acct, entry); err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}
	return entry, nil
}

// lock creates the account row on first use and takes its row lock for the
// rest of the transaction.
func (s *Store) lock(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (*domain.Account, error) {
	if accountID == uuid.Nil {
		return nil, fmt.Errorf("lock: account id: %w", domain.ErrMissingField)
	}
	if err := s.accounts.EnsureExists(ctx, tx, accountID); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	acct, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	return acct, nil
}

// record appends the entry and writes the figures it produces. The account
// passed in is updated to the new state.
func (s *Store) record(ctx context.Context, tx *sql.Tx, acct *domain.Account, entry *domain.Transaction) error {
	newBalance := acct.Balance + entry.Amount
	newFrozen := acct.FrozenBalance + entry.FrozenDelta
	if newFrozen < 0 || newBalance < newFrozen {
		return fmt.Errorf("record: balance %d frozen %d: %w", newBalance, newFrozen, domain.ErrInsufficientFunds)
	}

	if err := s.transactions.Append(ctx, tx, entry); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if err := s.accounts.UpdateBalances(ctx, tx, acct.AccountID, newBalance, newFrozen, acct.Version+1); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	acct.Balance = newBalance
	acct.FrozenBalance = newFrozen
	acct.Version++
	metrics.LedgerMutation(string(entry.Type), "applied")
	return nil
}

func newEntry(acct *domain.Account, t domain.TransactionType, amount, frozenDelta int64, ref domain.Reference, description string) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		AccountID:     acct.AccountID,
		Type:          t,
		Amount:        amount,
		FrozenDelta:   frozenDelta,
		BalanceBefore: acct.Balance,
		BalanceAfter:  acct.Balance + amount,
		Status:        domain.TransactionStatusCompleted,
		Reference:     ref,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
}

func validateDelta(req DeltaRequest) error {
	if !req.Type.IsDelta() {
		return fmt.Errorf("type %q cannot be applied as a delta: %w", req.Type, domain.ErrValidation)
	}
	if req.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	switch sign := req.Type.Sign(); {
	case sign > 0 && req.Amount < 0:
		return fmt.Errorf("%s must be a credit: %w", req.Type, domain.ErrValidation)
	case sign < 0 && req.Amount > 0:
		return fmt.Errorf("%s must be a debit: %w", req.Type, domain.ErrValidation)
	}
	return nil
}

func encodeMetadata(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encodeMetadata: %w", err)
	}
	return b, nil
}
