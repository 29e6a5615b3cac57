package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentOrderStatus string

const (
	PaymentOrderStatusPending   PaymentOrderStatus = "pending"
	PaymentOrderStatusCompleted PaymentOrderStatus = "completed"
	PaymentOrderStatusFailed    PaymentOrderStatus = "failed"
	PaymentOrderStatusExpired   PaymentOrderStatus = "expired"
	PaymentOrderStatusRefunded  PaymentOrderStatus = "refunded"
)

func (s PaymentOrderStatus) IsTerminal() bool {
	return s != PaymentOrderStatusPending
}

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodSBP    PaymentMethod = "sbp"
	PaymentMethodCrypto PaymentMethod = "crypto"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodSBP, PaymentMethodCrypto:
		return true
	}
	return false
}

// ProviderStatus is what the checkout provider reports for a session.
type ProviderStatus string

const (
	ProviderStatusPending   ProviderStatus = "pending"
	ProviderStatusSucceeded ProviderStatus = "succeeded"
	ProviderStatusCanceled  ProviderStatus = "canceled"
	ProviderStatusFailed    ProviderStatus = "failed"
)

type PaymentOrder struct {
	OrderID         uuid.UUID
	AccountID       uuid.UUID
	Amount          int64
	Method          PaymentMethod
	Status          PaymentOrderStatus
	ProviderOrderID *string
	ConfirmationURL *string
	FailureReason   *string
	ExpiresAt       time.Time
	CreatedAt       time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// EffectiveStatus reports a pending order past its deadline as expired even
// before the sweep has written that down.
func (o *PaymentOrder) EffectiveStatus(now time.Time) PaymentOrderStatus {
	if o.Status == PaymentOrderStatusPending && now.After(o.ExpiresAt) {
		return PaymentOrderStatusExpired
	}
	return o.Status
}

// DepositKey is the idempotency key of the deposit an order produces. It is
// anchored on the provider's id when one was issued.
func (o *PaymentOrder) DepositKey() string {
	if o.ProviderOrderID != nil && *o.ProviderOrderID != "" {
		return "deposit:" + *o.ProviderOrderID
	}
	return "deposit:" + o.OrderID.String()
}
