package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

const transactionColumns = `id, seq, account_id, type, amount, frozen_delta,
	balance_before, balance_after, status, reference_type, reference_id,
	idempotency_key, description, metadata, created_at`

// TransactionRepository is the transaction log. It exposes appends and reads
// only; the table itself rejects UPDATE and DELETE.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	metadata := []byte(t.Metadata)
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO transactions (
			id, account_id, type, amount, frozen_delta, balance_before, balance_after,
			status, reference_type, reference_id, idempotency_key, description, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq`,
		t.ID, t.AccountID, t.Type, t.Amount, t.FrozenDelta, t.BalanceBefore, t.BalanceAfter,
		t.Status, nullString(string(t.Reference.Type)), nullString(t.Reference.ID),
		t.IdempotencyKey, t.Description, metadata, t.CreatedAt,
	).Scan(&t.Seq)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Append: %w", domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// GetByIdempotencyKey runs inside the caller's transaction so the lookup is
// covered by the account row lock already held.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, key string) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 AND idempotency_key = $2`,
		accountID, key,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return t, nil
}

// Query returns a page of an account's entries, newest first, plus the total
// number of matching entries.
func (r *TransactionRepository) Query(ctx context.Context, accountID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	var typeFilter *string
	if f.Type != "" {
		s := string(f.Type)
		typeFilter = &s
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions
		WHERE account_id = $1 AND ($2::text IS NULL OR type = $2)`,
		accountID, typeFilter,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("Query: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 AND ($2::text IS NULL OR type = $2)
		ORDER BY seq DESC LIMIT $3 OFFSET $4`,
		accountID, typeFilter, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close()

	entries, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("Query: %w", err)
	}
	return entries, total, nil
}

// GetByReference returns the entries pointing at one entity in commit order.
func (r *TransactionRepository) GetByReference(ctx context.Context, ref domain.Reference) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE reference_type = $1 AND reference_id = $2 ORDER BY seq`,
		ref.Type, ref.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	defer rows.Close()

	entries, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return entries, nil
}

// ActivePurchase finds the latest completed purchase of a resource that has
// not been refunded.
func (r *TransactionRepository) ActivePurchase(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions p
		WHERE p.type = $1 AND p.status = $2
		  AND p.reference_type = $3 AND p.reference_id = $4
		  AND NOT EXISTS (
			SELECT 1 FROM transactions r
			WHERE r.type = $5 AND r.status = $2
			  AND r.reference_type = $6 AND r.reference_id = p.id::text
		  )
		ORDER BY p.seq DESC LIMIT 1`,
		domain.TransactionTypePurchase, domain.TransactionStatusCompleted,
		domain.ReferenceResource, resourceID.String(),
		domain.TransactionTypeRefund, domain.ReferenceTransaction,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ActivePurchase: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ActivePurchase: %w", err)
	}
	return t, nil
}

// Replay sums the signed effects of every completed entry of an account.
func (r *TransactionRepository) Replay(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (balance, frozen int64, count int, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(frozen_delta), 0), COUNT(*)
		FROM transactions WHERE account_id = $1 AND status = $2`,
		accountID, domain.TransactionStatusCompleted,
	).Scan(&balance, &frozen, &count)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("Replay: %w", err)
	}
	return balance, frozen, count, nil
}

// SumByType returns the completed signed amount per transaction type.
func (r *TransactionRepository) SumByType(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (map[domain.TransactionType]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT type, COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND status = $2 GROUP BY type`,
		accountID, domain.TransactionStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("SumByType: %w", err)
	}
	defer rows.Close()

	sums := make(map[domain.TransactionType]int64)
	for rows.Next() {
		var (
			t   domain.TransactionType
			sum int64
		)
		if err := rows.Scan(&t, &sum); err != nil {
			return nil, fmt.Errorf("SumByType: scan: %w", err)
		}
		sums[t] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumByType: rows: %w", err)
	}
	return sums, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var entries []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t       domain.Transaction
		refType sql.NullString
		refID   sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.Seq, &t.AccountID, &t.Type, &t.Amount, &t.FrozenDelta,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status, &refType, &refID,
		&t.IdempotencyKey, &t.Description, &t.Metadata, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Reference = domain.Reference{Type: domain.ReferenceType(refType.String), ID: refID.String}
	return &t, nil
}
