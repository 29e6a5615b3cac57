package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeFreeze     TransactionType = "freeze"
	TransactionTypeUnfreeze   TransactionType = "unfreeze"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeCorrection TransactionType = "correction"
	TransactionTypePayout     TransactionType = "payout"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypePurchase, TransactionTypeWithdrawal,
		TransactionTypeFreeze, TransactionTypeUnfreeze, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypeCorrection, TransactionTypePayout:
		return true
	}
	return false
}

// Sign reports the direction a delta of this type must have: 1 for credits,
// -1 for debits, 0 when either is allowed. Freeze, unfreeze and withdrawal
// never go through a plain delta and report 0 as well.
func (t TransactionType) Sign() int {
	switch t {
	case TransactionTypeDeposit, TransactionTypeRefund, TransactionTypeBonus, TransactionTypePayout:
		return 1
	case TransactionTypePurchase:
		return -1
	default:
		return 0
	}
}

// IsDelta reports whether entries of this type are created by ApplyDelta.
func (t TransactionType) IsDelta() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypePurchase, TransactionTypeRefund,
		TransactionTypeBonus, TransactionTypeCorrection, TransactionTypePayout:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type ReferenceType string

const (
	ReferenceWithdrawal   ReferenceType = "withdrawal_request"
	ReferencePaymentOrder ReferenceType = "payment_order"
	ReferenceResource     ReferenceType = "resource"
	ReferenceTransaction  ReferenceType = "transaction"
)

type Reference struct {
	Type ReferenceType
	ID   string
}

func (r Reference) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// Key scopes for idempotency keys. Client-chosen keys are always stored under
// a caller scope, so they never collide with the keys the ledger derives for
// deposits, refunds and chargebacks.
const (
	KeyScopePurchase = "purchase"
	KeyScopeManual   = "manual"
)

// ScopedKey prefixes a client-chosen idempotency key with its scope. An empty
// key stays empty.
func ScopedKey(scope, key string) string {
	if key == "" {
		return ""
	}
	return scope + ":" + key
}

// Transaction is one immutable entry of the log. Amount is the signed effect
// on balance and FrozenDelta the signed effect on frozen_balance, so replaying
// completed entries reproduces both figures.
type Transaction struct {
	ID             uuid.UUID
	Seq            int64
	AccountID      uuid.UUID
	Type           TransactionType
	Amount         int64
	FrozenDelta    int64
	BalanceBefore  int64
	BalanceAfter   int64
	Status         TransactionStatus
	Reference      Reference
	IdempotencyKey *string
	Description    string
	Metadata       json.RawMessage
	CreatedAt      time.Time
}

type TransactionFilter struct {
	Type   TransactionType
	Limit  int
	Offset int
}
