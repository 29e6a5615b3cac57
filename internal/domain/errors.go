package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInsufficientFrozenFunds = errors.New("insufficient frozen funds")
	ErrDuplicateOperation      = errors.New("duplicate operation")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrRefundNotAllowed        = errors.New("refund not allowed")
	ErrNotFound                = errors.New("not found")
	ErrProvider                = errors.New("payment provider error")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrIdempotencyKeyReused    = errors.New("idempotency key already used for a different operation")

	ErrInvalidAmount = fmt.Errorf("amount must be greater than zero: %w", ErrValidation)
	ErrBelowMinimum  = fmt.Errorf("amount below minimum: %w", ErrValidation)
	ErrMissingField  = fmt.Errorf("missing field: %w", ErrValidation)
	ErrForbidden     = fmt.Errorf("forbidden: %w", ErrUnauthorized)
)

// FundsError carries the figures behind an insufficient-funds rejection so
// callers can tell the user how much is actually available.
type FundsError struct {
	Err       error
	Available int64
	Requested int64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("%v: available %d, requested %d", e.Err, e.Available, e.Requested)
}

func (e *FundsError) Unwrap() error { return e.Err }

type MinimumError struct {
	Minimum   int64
	Requested int64
}

func (e *MinimumError) Error() string {
	return fmt.Sprintf("%v: minimum %d, requested %d", ErrBelowMinimum, e.Minimum, e.Requested)
}

func (e *MinimumError) Unwrap() error { return ErrBelowMinimum }

// FieldError names the request field a validation failure is about.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingField, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }
