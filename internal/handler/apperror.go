package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

// withMessage returns a copy carrying a request-specific message.
func (e *AppError) withMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidSignature = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Insufficient permissions"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrPayloadTooLarge  = &AppError{http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrRateLimited      = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount           = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrBelowMinimum            = &AppError{http.StatusBadRequest, "BELOW_MINIMUM", "Amount is below the minimum"}
	ErrMissingField            = &AppError{http.StatusBadRequest, "MISSING_FIELD", "A required field is missing"}
	ErrInsufficientFunds       = &AppError{http.StatusBadRequest, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInsufficientFrozenFunds = &AppError{http.StatusConflict, "INSUFFICIENT_FROZEN_FUNDS", "Not enough frozen funds"}
	ErrDuplicateOperation      = &AppError{http.StatusConflict, "DUPLICATE_OPERATION", "Operation was already performed"}
	ErrInvalidStateTransition  = &AppError{http.StatusConflict, "INVALID_STATE_TRANSITION", "Operation is not allowed in the current state"}
	ErrVersionConflict         = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrRefundNotAllowed        = &AppError{http.StatusUnprocessableEntity, "REFUND_NOT_ALLOWED", "Refund is no longer allowed for this purchase"}
	ErrProviderError           = &AppError{http.StatusBadGateway, "PROVIDER_ERROR", "Payment provider is unavailable"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrInvalidIdempotencyKey = &AppError{http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be at most 255 characters"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrRequestInProgress     = &AppError{http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this Idempotency-Key is still being processed"}
)
