package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

const paymentOrderColumns = `order_id, account_id, amount, method, status, provider_order_id,
	confirmation_url, failure_reason, expires_at, created_at, completed_at, updated_at`

type PaymentOrderRepository struct {
	db *sql.DB
}

func NewPaymentOrderRepository(db *sql.DB) *PaymentOrderRepository {
	return &PaymentOrderRepository{db: db}
}

func (r *PaymentOrderRepository) Create(ctx context.Context, o *domain.PaymentOrder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_orders (
			order_id, account_id, amount, method, status, provider_order_id,
			confirmation_url, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.OrderID, o.AccountID, o.Amount, o.Method, o.Status, o.ProviderOrderID,
		o.ConfirmationURL, o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentOrder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentOrderColumns+` FROM payment_orders WHERE order_id = $1`, id,
	)
	o, err := scanPaymentOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

func (r *PaymentOrderRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*domain.PaymentOrder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentOrderColumns+` FROM payment_orders WHERE provider_order_id = $1`, providerOrderID,
	)
	o, err := scanPaymentOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderOrderID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderOrderID: %w", err)
	}
	return o, nil
}

func (r *PaymentOrderRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentOrder, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentOrderColumns+` FROM payment_orders WHERE order_id = $1 FOR UPDATE`, id,
	)
	o, err := scanPaymentOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return o, nil
}

func (r *PaymentOrderRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentOrder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentOrderColumns+` FROM payment_orders
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	var orders []domain.PaymentOrder
	for rows.Next() {
		o, err := scanPaymentOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: scan: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByAccount: rows: %w", err)
	}
	return orders, nil
}

// AttachSession records the provider's session for a still pending order.
func (r *PaymentOrderRepository) AttachSession(ctx context.Context, id uuid.UUID, providerOrderID, confirmationURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET provider_order_id = $1, confirmation_url = $2, updated_at = now()
		WHERE order_id = $3 AND status = $4`,
		providerOrderID, confirmationURL, id, domain.PaymentOrderStatusPending,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("AttachSession: %w", domain.ErrDuplicateOperation)
		}
		return fmt.Errorf("AttachSession: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AttachSession: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("AttachSession: %w", domain.ErrInvalidStateTransition)
	}
	return nil
}

func (r *PaymentOrderRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentOrderStatus, failureReason *string, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_orders SET status = $1,
			failure_reason = COALESCE($2, failure_reason),
			completed_at = COALESCE($3, completed_at),
			updated_at = now()
		WHERE order_id = $4`,
		status, failureReason, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkFailed terminates a pending order outside any ledger transaction. It is
// used when the provider never issued a session.
func (r *PaymentOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = $1, failure_reason = $2, updated_at = now()
		WHERE order_id = $3 AND status = $4`,
		domain.PaymentOrderStatusFailed, reason, id, domain.PaymentOrderStatusPending,
	)
	if err != nil {
		return fmt.Errorf("MarkFailed: %w", err)
	}
	return nil
}

// ExpirePending moves every pending order past its deadline to expired. Each
// row update takes its own row lock, so a concurrent completion either wins
// before the sweep or sees the expired status.
func (r *PaymentOrderRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at < $2`,
		domain.PaymentOrderStatusExpired, now, domain.PaymentOrderStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("ExpirePending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ExpirePending: rows affected: %w", err)
	}
	return n, nil
}

func scanPaymentOrder(s scanner) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	err := s.Scan(
		&o.OrderID, &o.AccountID, &o.Amount, &o.Method, &o.Status, &o.ProviderOrderID,
		&o.ConfirmationURL, &o.FailureReason, &o.ExpiresAt, &o.CreatedAt, &o.CompletedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
