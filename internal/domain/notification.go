package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationWithdrawalRequested NotificationType = "withdrawal_pending"
	NotificationWithdrawalApproved  NotificationType = "withdrawal_approved"
	NotificationWithdrawalRejected  NotificationType = "withdrawal_rejected"
	NotificationWithdrawalPaid      NotificationType = "withdrawal_completed"
	NotificationDepositCompleted    NotificationType = "deposit_completed"
	NotificationRefundCompleted     NotificationType = "refund_completed"
)

// Notification is a finance event fanned out to the account owner after the
// change behind it has committed.
type Notification struct {
	Type        NotificationType `json:"type"`
	AccountID   uuid.UUID        `json:"account_id"`
	Amount      int64            `json:"amount"`
	ReferenceID string           `json:"reference_id"`
	Comment     string           `json:"comment,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
