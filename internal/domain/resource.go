package domain

import (
	"time"

	"github.com/google/uuid"
)

type ResourceStatus string

const (
	ResourceStatusDraft           ResourceStatus = "draft"
	ResourceStatusAwaitingPayment ResourceStatus = "awaiting_payment"
	ResourceStatusSubmitted       ResourceStatus = "submitted"
	ResourceStatusPublished       ResourceStatus = "published"
	ResourceStatusRejected        ResourceStatus = "rejected"
)

// Refundable reports whether a purchase of a resource in this state may still
// be refunded.
func (s ResourceStatus) Refundable() bool {
	return s == ResourceStatusDraft || s == ResourceStatusAwaitingPayment
}

// Resource is a purchasable item (a release) owned by an external lifecycle.
type Resource struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Status    ResourceStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
