package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusRequested WithdrawalStatus = "requested"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
	WithdrawalStatusPaid      WithdrawalStatus = "paid"
)

func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalStatusRequested, WithdrawalStatusApproved, WithdrawalStatusRejected, WithdrawalStatusPaid:
		return true
	}
	return false
}

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusRejected || s == WithdrawalStatusPaid
}

var withdrawalTransitions = map[WithdrawalStatus]WithdrawalStatus{
	WithdrawalStatusApproved: WithdrawalStatusRequested,
	WithdrawalStatusRejected: WithdrawalStatusRequested,
	WithdrawalStatusPaid:     WithdrawalStatusApproved,
}

// CheckTransition returns (true, nil) when the withdrawal already sits in the
// target state, (false, nil) when the move is allowed, and
// ErrInvalidStateTransition otherwise.
func (s WithdrawalStatus) CheckTransition(to WithdrawalStatus) (bool, error) {
	if s == to {
		return true, nil
	}
	if from, ok := withdrawalTransitions[to]; ok && from == s {
		return false, nil
	}
	return false, fmt.Errorf("%s -> %s: %w", s, to, ErrInvalidStateTransition)
}

type PayoutMethod string

const (
	PayoutMethodCard PayoutMethod = "card"
	PayoutMethodSBP  PayoutMethod = "sbp"
)

type PayoutDetails struct {
	Method         PayoutMethod `json:"method"`
	BankName       string       `json:"bank_name"`
	CardNumber     string       `json:"card_number"`
	RecipientName  string       `json:"recipient_name"`
	AdditionalInfo string       `json:"additional_info,omitempty"`
}

// Masked keeps only the last four digits of the card number.
func (d PayoutDetails) Masked() PayoutDetails {
	digits := make([]rune, 0, len(d.CardNumber))
	for _, r := range d.CardNumber {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	d.CardNumber = "****" + string(digits)
	return d
}

type Withdrawal struct {
	ID                  uuid.UUID
	AccountID           uuid.UUID
	Amount              int64
	PayoutDetails       PayoutDetails
	Status              WithdrawalStatus
	IdempotencyKey      *string
	FreezeTransactionID *uuid.UUID
	DecidedBy           *uuid.UUID
	AdminComment        *string
	ExpectedPayoutDate  *time.Time
	CreatedAt           time.Time
	DecidedAt           *time.Time
	PaidAt              *time.Time
	UpdatedAt           time.Time
}

type WithdrawalDetail struct {
	Withdrawal
	Transactions []Transaction
}
