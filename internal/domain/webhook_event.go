package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusDispatched WebhookEventStatus = "dispatched"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

type WebhookEventType string

const (
	WebhookEventTypePaymentSucceeded WebhookEventType = "payment.succeeded"
	WebhookEventTypePaymentCanceled  WebhookEventType = "payment.canceled"
	WebhookEventTypeRefundSucceeded  WebhookEventType = "refund.succeeded"
)

func (t WebhookEventType) IsValid() bool {
	switch t {
	case WebhookEventTypePaymentSucceeded, WebhookEventTypePaymentCanceled, WebhookEventTypeRefundSucceeded:
		return true
	}
	return false
}

type WebhookEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	EventType      WebhookEventType
	Payload        json.RawMessage
	Status         WebhookEventStatus
	Attempts       int
	LastAttempt    *time.Time
	CreatedAt      time.Time
}

// ProviderEvent is the body of a signed provider callback.
type ProviderEvent struct {
	EventID         string           `json:"event_id"`
	Event           WebhookEventType `json:"event"`
	OrderID         string           `json:"order_id"`
	ProviderOrderID string           `json:"provider_order_id"`
	Status          ProviderStatus   `json:"status"`
	Reason          string           `json:"reason,omitempty"`
	Timestamp       string           `json:"timestamp,omitempty"`
}
