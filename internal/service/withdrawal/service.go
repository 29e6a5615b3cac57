// Package withdrawal runs the payout request lifecycle. A request freezes the
// amount, a rejection or cancellation releases it and a payout realizes it.
package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/config"
	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
)

const cancelComment = "cancelled by account owner"

type withdrawalRepo interface {
	Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	GetByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Withdrawal, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, int, error)
	ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, int, error)
	UpdateDecision(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error
}

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	FreezeTx(ctx context.Context, tx *sql.Tx, req ledger.HoldRequest) (*domain.Transaction, error)
	UnfreezeTx(ctx context.Context, tx *sql.Tx, req ledger.HoldRequest) (*domain.Transaction, error)
	SettleTx(ctx context.Context, tx *sql.Tx, req ledger.HoldRequest) (*domain.Transaction, error)
}

type transactionReader interface {
	GetByReference(ctx context.Context, ref domain.Reference) ([]domain.Transaction, error)
}

type PayoutRequest struct {
	WithdrawalID uuid.UUID
	AccountID    uuid.UUID
	Amount       int64
	Details      domain.PayoutDetails
}

type payoutClient interface {
	SubmitPayout(ctx context.Context, req PayoutRequest) error
}

type notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Service struct {
	withdrawals  withdrawalRepo
	ledger       ledgerStore
	transactions transactionReader
	payouts      payoutClient
	notifier     notifier
	config       *config.Config
}

func NewService(
	withdrawals withdrawalRepo,
	ledger ledgerStore,
	transactions transactionReader,
	payouts payoutClient,
	notifier notifier,
	cfg *config.Config,
) *Service {
	return &Service{
		withdrawals:  withdrawals,
		ledger:       ledger,
		transactions: transactions,
		payouts:      payouts,
		notifier:     notifier,
		config:       cfg,
	}
}

type Request struct {
	AccountID      uuid.UUID
	Amount         int64
	PayoutDetails  domain.PayoutDetails
	IdempotencyKey string
}

// Decision is what an operator (or, for Cancel, the owner) attaches to a
// transition.
type Decision struct {
	ActorID            uuid.UUID
	Comment            string
	ExpectedPayoutDate *time.Time
}

// RequestWithdrawal freezes the amount and records the request in one
// transaction. A retried key returns the request it created the first time.
func (s *Service) RequestWithdrawal(ctx context.Context, req Request) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	if err := s.validateRequest(req); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	if req.PayoutDetails.Method == "" {
		req.PayoutDetails.Method = domain.PayoutMethodCard
	}

	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, req)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	now := time.Now().UTC()
	w := &domain.Withdrawal{
		ID:            uuid.New(),
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		PayoutDetails: req.PayoutDetails.Masked(),
		Status:        domain.WithdrawalStatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		w.IdempotencyKey = &key
	}

	err := s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		hold, err := s.ledger.FreezeTx(ctx, tx, ledger.HoldRequest{
			AccountID:   req.AccountID,
			Amount:      req.Amount,
			Reference:   domain.Reference{Type: domain.ReferenceWithdrawal, ID: w.ID.String()},
			Description: "Withdrawal hold",
		})
		if err != nil {
			return err
		}
		w.FreezeTransactionID = &hold.ID
		return s.withdrawals.Create(ctx, tx, w)
	})
	if err != nil {
		// Another instance may have committed the same key while this one
		// waited on the account lock; its hold is why ours failed.
		if req.IdempotencyKey != "" {
			existing, replayErr := s.replay(ctx, req)
			switch {
			case existing != nil:
				return existing, nil
			case errors.Is(replayErr, domain.ErrIdempotencyKeyReused):
				return nil, replayErr
			}
		}
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	metrics.WithdrawalTransition(string(w.Status))
	log.Info("withdrawal requested",
		"withdrawal_id", w.ID,
		"account_id", w.AccountID,
		"amount", w.Amount,
	)
	s.notify(ctx, domain.NotificationWithdrawalRequested, w, "")
	return w, nil
}

// replay returns the request already stored under the idempotency key, or nil
// when the key is unused.
func (s *Service) replay(ctx context.Context, req Request) (*domain.Withdrawal, error) {
	existing, err := s.withdrawals.GetByIdempotencyKey(ctx, req.AccountID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	if existing.Amount != req.Amount {
		return nil, fmt.Errorf("RequestWithdrawal: key reused with a different amount: %w", domain.ErrIdempotencyKeyReused)
	}
	logging.FromContext(ctx).Info("idempotent replay", "withdrawal_id", existing.ID, "idempotency_key", req.IdempotencyKey)
	return existing, nil
}

func (s *Service) validateRequest(req Request) error {
	if req.AccountID == uuid.Nil {
		return &domain.FieldError{Field: "account_id"}
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if req.Amount < s.config.MinWithdrawalAmount {
		return &domain.MinimumError{Minimum: s.config.MinWithdrawalAmount, Requested: req.Amount}
	}

	d := req.PayoutDetails
	if d.Method != "" && d.Method != domain.PayoutMethodCard && d.Method != domain.PayoutMethodSBP {
		return fmt.Errorf("payout method %q: %w", d.Method, domain.ErrValidation)
	}
	required := []struct{ field, value string }{
		{"bank_name", d.BankName},
		{"card_number", d.CardNumber},
		{"recipient_name", d.RecipientName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &domain.FieldError{Field: r.field}
		}
	}
	return nil
}

// Approve records the operator's decision and then hands the payout to the
// provider. The provider call happens after commit; its failure leaves the
// request approved for a retry or a manual payout.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, d Decision) (*domain.Withdrawal, error) {
	w, changed, err := s.transition(ctx, id, nil, domain.WithdrawalStatusApproved, d, nil)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if !changed {
		return w, nil
	}

	s.notify(ctx, domain.NotificationWithdrawalApproved, w, d.Comment)
	if s.payouts != nil {
		err := s.payouts.SubmitPayout(ctx, PayoutRequest{
			WithdrawalID: w.ID,
			AccountID:    w.AccountID,
			Amount:       w.Amount,
			Details:      w.PayoutDetails,
		})
		if err != nil {
			logging.FromContext(ctx).Warn("payout submission failed, awaiting manual payout",
				"withdrawal_id", w.ID,
				"error", err,
			)
		}
	}
	return w, nil
}

// Reject releases the frozen amount back to available funds.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, d Decision) (*domain.Withdrawal, error) {
	w, changed, err := s.transition(ctx, id, nil, domain.WithdrawalStatusRejected, d, s.release)
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}
	if changed {
		s.notify(ctx, domain.NotificationWithdrawalRejected, w, d.Comment)
	}
	return w, nil
}

// Cancel lets the owner withdraw a request that no operator has decided yet.
// It ends in the rejected state with the owner recorded as the decider.
func (s *Service) Cancel(ctx context.Context, id, accountID uuid.UUID) (*domain.Withdrawal, error) {
	d := Decision{ActorID: accountID, Comment: cancelComment}
	w, changed, err := s.transition(ctx, id, &accountID, domain.WithdrawalStatusRejected, d, s.release)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if changed {
		s.notify(ctx, domain.NotificationWithdrawalRejected, w, cancelComment)
	}
	return w, nil
}

// MarkPaid realizes the hold: balance and frozen both drop by the amount.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, d Decision) (*domain.Withdrawal, error) {
	w, changed, err := s.transition(ctx, id, nil, domain.WithdrawalStatusPaid, d, s.settle)
	if err != nil {
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}
	if changed {
		s.notify(ctx, domain.NotificationWithdrawalPaid, w, d.Comment)
	}
	return w, nil
}

type effect func(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error

func (s *Service) release(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	_, err := s.ledger.UnfreezeTx(ctx, tx, ledger.HoldRequest{
		AccountID:   w.AccountID,
		Amount:      w.Amount,
		Reference:   domain.Reference{Type: domain.ReferenceWithdrawal, ID: w.ID.String()},
		Description: "Withdrawal hold released",
	})
	return err
}

func (s *Service) settle(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	_, err := s.ledger.SettleTx(ctx, tx, ledger.HoldRequest{
		AccountID:   w.AccountID,
		Amount:      w.Amount,
		Reference:   domain.Reference{Type: domain.ReferenceWithdrawal, ID: w.ID.String()},
		Description: "Withdrawal paid out",
	})
	return err
}

// transition locks the request row, applies the ledger effect and stores the
// new status in one transaction. A request already in the target state is
// returned unchanged with changed=false.
func (s *Service) transition(ctx context.Context, id uuid.UUID, owner *uuid.UUID, to domain.WithdrawalStatus, d Decision, fx effect) (*domain.Withdrawal, bool, error) {
	log := logging.FromContext(ctx)

	var (
		result  *domain.Withdrawal
		changed bool
	)
	err := s.ledger.WithinTx(ctx, func(tx *sql.Tx) error {
		w, err := s.withdrawals.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if owner != nil && w.AccountID != *owner {
			return domain.ErrNotFound
		}
		result = w

		already, err := w.Status.CheckTransition(to)
		if err != nil {
			return err
		}
		if already {
			return nil
		}

		if fx != nil {
			if err := fx(ctx, tx, w); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		from := w.Status
		w.Status = to
		w.DecidedBy = &d.ActorID
		if d.Comment != "" {
			comment := d.Comment
			w.AdminComment = &comment
		}
		if d.ExpectedPayoutDate != nil {
			w.ExpectedPayoutDate = d.ExpectedPayoutDate
		}
		if to == domain.WithdrawalStatusPaid {
			w.PaidAt = &now
		} else {
			w.DecidedAt = &now
		}
		w.UpdatedAt = now

		if err := s.withdrawals.UpdateDecision(ctx, tx, w); err != nil {
			return err
		}
		changed = true
		log.Info("withdrawal status changed",
			"withdrawal_id", w.ID,
			"from", from,
			"to", to,
			"decided_by", d.ActorID,
		)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		metrics.WithdrawalTransition(string(to))
	}
	return result, changed, nil
}

// Get returns a request with the log entries it produced. A non-nil owner
// restricts the lookup to that account.
func (s *Service) Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*domain.WithdrawalDetail, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if owner != nil && w.AccountID != *owner {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}

	entries, err := s.transactions.GetByReference(ctx, domain.Reference{Type: domain.ReferenceWithdrawal, ID: w.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &domain.WithdrawalDetail{Withdrawal: *w, Transactions: entries}, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, int, error) {
	list, total, err := s.withdrawals.ListByAccount(ctx, accountID, pageLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return list, total, nil
}

// ListByStatus is the operator queue, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, int, error) {
	if !status.IsValid() {
		return nil, 0, fmt.Errorf("ListByStatus: status %q: %w", status, domain.ErrValidation)
	}
	list, total, err := s.withdrawals.ListByStatus(ctx, status, pageLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("ListByStatus: %w", err)
	}
	return list, total, nil
}

func (s *Service) notify(ctx context.Context, t domain.NotificationType, w *domain.Withdrawal, comment string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, domain.Notification{
		Type:        t,
		AccountID:   w.AccountID,
		Amount:      w.Amount,
		ReferenceID: w.ID.String(),
		Comment:     comment,
		CreatedAt:   time.Now().UTC(),
	})
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}
