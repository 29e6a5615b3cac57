package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

const withdrawalColumns = `id, account_id, amount, payout_details, status, idempotency_key,
	freeze_transaction_id, decided_by, admin_comment, expected_payout_date,
	created_at, decided_at, paid_at, updated_at`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	details, err := json.Marshal(w.PayoutDetails)
	if err != nil {
		return fmt.Errorf("Create: marshal payout details: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (
			id, account_id, amount, payout_details, status, idempotency_key,
			freeze_transaction_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.AccountID, w.Amount, details, w.Status, w.IdempotencyKey,
		w.FreezeTransactionID, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE account_id = $1 AND idempotency_key = $2`,
		accountID, key,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	list, err := collectWithdrawals(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	return list, total, nil
}

// ListByStatus serves the admin queue, oldest first.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE status = $1`, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	defer rows.Close()

	list, err := collectWithdrawals(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	return list, total, nil
}

// UpdateDecision persists a state transition together with who made it.
func (r *WithdrawalRepository) UpdateDecision(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests SET
			status = $1, decided_by = $2, admin_comment = $3, expected_payout_date = $4,
			decided_at = $5, paid_at = $6, updated_at = $7
		WHERE id = $8`,
		w.Status, w.DecidedBy, w.AdminComment, w.ExpectedPayoutDate,
		w.DecidedAt, w.PaidAt, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateDecision: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateDecision: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateDecision: %w", domain.ErrNotFound)
	}
	return nil
}

func collectWithdrawals(rows *sql.Rows) ([]domain.Withdrawal, error) {
	var list []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		list = append(list, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return list, nil
}

func scanWithdrawal(s scanner) (*domain.Withdrawal, error) {
	var (
		w       domain.Withdrawal
		details []byte
	)
	err := s.Scan(
		&w.ID, &w.AccountID, &w.Amount, &details, &w.Status, &w.IdempotencyKey,
		&w.FreezeTransactionID, &w.DecidedBy, &w.AdminComment, &w.ExpectedPayoutDate,
		&w.CreatedAt, &w.DecidedAt, &w.PaidAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &w.PayoutDetails); err != nil {
		return nil, fmt.Errorf("payout details: %w", err)
	}
	return &w, nil
}
