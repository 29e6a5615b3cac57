package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

// money renders an amount in minor units next to its decimal display form.
type money struct {
	Amount  int64  `json:"amount"`
	Display string `json:"display"`
}

func toMoney(minor int64) money {
	return money{Amount: minor, Display: domain.FormatAmount(minor)}
}

type summaryDTO struct {
	AccountID      uuid.UUID `json:"account_id"`
	Balance        money     `json:"balance"`
	Frozen         money     `json:"frozen"`
	Available      money     `json:"available"`
	TotalDeposited money     `json:"total_deposited"`
	TotalWithdrawn money     `json:"total_withdrawn"`
	TotalSpent     money     `json:"total_spent"`
	TotalRefunded  money     `json:"total_refunded"`
}

func toSummaryDTO(s domain.BalanceSummary) summaryDTO {
	return summaryDTO{
		AccountID:      s.AccountID,
		Balance:        toMoney(s.Balance.Balance),
		Frozen:         toMoney(s.Frozen),
		Available:      toMoney(s.Available),
		TotalDeposited: toMoney(s.TotalDeposited),
		TotalWithdrawn: toMoney(s.TotalWithdrawn),
		TotalSpent:     toMoney(s.TotalSpent),
		TotalRefunded:  toMoney(s.TotalRefunded),
	}
}

type transactionDTO struct {
	ID            uuid.UUID       `json:"id"`
	Seq           int64           `json:"seq"`
	AccountID     uuid.UUID       `json:"account_id"`
	Type          string          `json:"type"`
	Amount        int64           `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	FrozenDelta   int64           `json:"frozen_delta"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	Status        string          `json:"status"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		Seq:           t.Seq,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		AmountDisplay: domain.FormatAmount(t.Amount),
		FrozenDelta:   t.FrozenDelta,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Status:        string(t.Status),
		ReferenceType: string(t.Reference.Type),
		ReferenceID:   t.Reference.ID,
		Description:   t.Description,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt,
	}
}

func toTransactionDTOs(ts []domain.Transaction) []transactionDTO {
	dtos := make([]transactionDTO, len(ts))
	for i := range ts {
		dtos[i] = toTransactionDTO(&ts[i])
	}
	return dtos
}

type withdrawalDTO struct {
	ID                 uuid.UUID            `json:"id"`
	AccountID          uuid.UUID            `json:"account_id"`
	Amount             int64                `json:"amount"`
	AmountDisplay      string               `json:"amount_display"`
	Status             string               `json:"status"`
	PayoutDetails      domain.PayoutDetails `json:"payout_details"`
	DecidedBy          *uuid.UUID           `json:"decided_by,omitempty"`
	AdminComment       *string              `json:"admin_comment,omitempty"`
	ExpectedPayoutDate *time.Time           `json:"expected_payout_date,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	DecidedAt          *time.Time           `json:"decided_at,omitempty"`
	PaidAt             *time.Time           `json:"paid_at,omitempty"`
	Transactions       []transactionDTO     `json:"transactions,omitempty"`
}

func toWithdrawalDTO(wd *domain.Withdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:                 wd.ID,
		AccountID:          wd.AccountID,
		Amount:             wd.Amount,
		AmountDisplay:      domain.FormatAmount(wd.Amount),
		Status:             string(wd.Status),
		PayoutDetails:      wd.PayoutDetails.Masked(),
		DecidedBy:          wd.DecidedBy,
		AdminComment:       wd.AdminComment,
		ExpectedPayoutDate: wd.ExpectedPayoutDate,
		CreatedAt:          wd.CreatedAt,
		DecidedAt:          wd.DecidedAt,
		PaidAt:             wd.PaidAt,
	}
}

func toWithdrawalDTOs(ws []domain.Withdrawal) []withdrawalDTO {
	dtos := make([]withdrawalDTO, len(ws))
	for i := range ws {
		dtos[i] = toWithdrawalDTO(&ws[i])
	}
	return dtos
}

type orderDTO struct {
	OrderID         uuid.UUID  `json:"order_id"`
	Amount          int64      `json:"amount"`
	AmountDisplay   string     `json:"amount_display"`
	Method          string     `json:"method"`
	Status          string     `json:"status"`
	ConfirmationURL *string    `json:"confirmation_url,omitempty"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toOrderDTO(o *domain.PaymentOrder) orderDTO {
	return orderDTO{
		OrderID:         o.OrderID,
		Amount:          o.Amount,
		AmountDisplay:   domain.FormatAmount(o.Amount),
		Method:          string(o.Method),
		Status:          string(o.Status),
		ConfirmationURL: o.ConfirmationURL,
		FailureReason:   o.FailureReason,
		ExpiresAt:       o.ExpiresAt,
		CreatedAt:       o.CreatedAt,
		CompletedAt:     o.CompletedAt,
	}
}

type resourceDTO struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResourceDTO(r *domain.Resource) resourceDTO {
	return resourceDTO{
		ID:        r.ID,
		AccountID: r.AccountID,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type reconciliationDTO struct {
	AccountID       uuid.UUID `json:"account_id"`
	Balance         int64     `json:"balance"`
	ReplayedBalance int64     `json:"replayed_balance"`
	Frozen          int64     `json:"frozen"`
	ReplayedFrozen  int64     `json:"replayed_frozen"`
	EntryCount      int       `json:"entry_count"`
	Consistent      bool      `json:"consistent"`
}

func toReconciliationDTO(r domain.Reconciliation) reconciliationDTO {
	return reconciliationDTO{
		AccountID:       r.AccountID,
		Balance:         r.Balance,
		ReplayedBalance: r.ReplayedBalance,
		Frozen:          r.Frozen,
		ReplayedFrozen:  r.ReplayedFrozen,
		EntryCount:      r.EntryCount,
		Consistent:      r.Consistent(),
	}
}
