package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps a service error onto the API error table. Errors
// that carry figures (available balance, minimum amount, missing field) put
// them in the message and in details.
func RespondDomainError(w http.ResponseWriter, err error) {
	var (
		fundsErr   *domain.FundsError
		minimumErr *domain.MinimumError
		fieldErr   *domain.FieldError
	)

	switch {
	case errors.As(err, &fundsErr):
		appErr, label := ErrInsufficientFunds, "available"
		if errors.Is(err, domain.ErrInsufficientFrozenFunds) {
			appErr, label = ErrInsufficientFrozenFunds, "frozen"
		}
		display := domain.FormatAmount(fundsErr.Available)
		RespondAppError(w, appErr.withMessage(fmt.Sprintf("%s balance is %s", label, display)), map[string]any{
			"available":         fundsErr.Available,
			"available_display": display,
			"requested":         fundsErr.Requested,
		})
		return
	case errors.As(err, &minimumErr):
		display := domain.FormatAmount(minimumErr.Minimum)
		RespondAppError(w, ErrBelowMinimum.withMessage(fmt.Sprintf("minimum amount is %s", display)), map[string]any{
			"minimum":         minimumErr.Minimum,
			"minimum_display": display,
		})
		return
	case errors.As(err, &fieldErr):
		RespondAppError(w, ErrMissingField.withMessage(fmt.Sprintf("%s is required", fieldErr.Field)), map[string]string{
			"field": fieldErr.Field,
		})
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInsufficientFrozenFunds):
		appErr = ErrInsufficientFrozenFunds
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrDuplicateOperation):
		appErr = ErrDuplicateOperation
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		appErr = ErrIdempotencyConflict
	case errors.Is(err, domain.ErrInvalidStateTransition):
		appErr = ErrInvalidStateTransition
	case errors.Is(err, domain.ErrRefundNotAllowed):
		appErr = ErrRefundNotAllowed
	case errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrVersionConflict
	case errors.Is(err, domain.ErrProvider):
		appErr = ErrProviderError
	case errors.Is(err, domain.ErrForbidden):
		appErr = ErrForbidden
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrBelowMinimum):
		appErr = ErrBelowMinimum
	case errors.Is(err, domain.ErrMissingField):
		appErr = ErrMissingField
	case errors.Is(err, domain.ErrValidation):
		appErr = ErrValidationFailed
	case errors.Is(err, domain.ErrUnauthorized):
		appErr = ErrForbidden
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
