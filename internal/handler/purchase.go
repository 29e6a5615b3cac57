package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/purchase"
)

type purchaseService interface {
	CreateResource(ctx context.Context, accountID uuid.UUID) (*domain.Resource, error)
	GetResource(ctx context.Context, id, accountID uuid.UUID) (*domain.Resource, error)
	Purchase(ctx context.Context, req purchase.Request) (*domain.Transaction, error)
	RequestRefund(ctx context.Context, req purchase.RefundRequest) (*domain.Transaction, error)
	Submit(ctx context.Context, resourceID, accountID uuid.UUID) (*domain.Resource, error)
}

type PurchaseHandler struct {
	purchases purchaseService
	validator *Validator
}

func NewPurchaseHandler(purchases purchaseService, validator *Validator) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, validator: validator}
}

type purchaseRequest struct {
	ResourceID string `json:"resource_id" validate:"required,uuid"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
}

func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req purchaseRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	entry, err := h.purchases.Purchase(r.Context(), purchase.Request{
		AccountID:      accountID,
		ResourceID:     uuid.MustParse(req.ResourceID),
		Amount:         req.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) && entry != nil {
			RespondAppError(w, ErrDuplicateOperation.withMessage("resource is already paid"), toTransactionDTO(entry))
			return
		}
		log.Warn("purchase failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", entry.ID))
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(entry))
}

func (h *PurchaseHandler) Refund(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req refundRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	entry, err := h.purchases.RequestRefund(r.Context(), purchase.RefundRequest{
		AccountID: accountID,
		PaymentID: uuid.MustParse(req.PaymentID),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund failed", "error", err, "payment_id", req.PaymentID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(entry))
}

func (h *PurchaseHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	res, err := h.purchases.CreateResource(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create resource", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/resources/%s", res.ID))
	RespondSuccess(w, http.StatusCreated, toResourceDTO(res))
}

func (h *PurchaseHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	res, err := h.purchases.GetResource(r.Context(), id, accountID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toResourceDTO(res))
}

func (h *PurchaseHandler) Submit(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	res, err := h.purchases.Submit(r.Context(), id, accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("resource submit failed", "error", err, "resource_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toResourceDTO(res))
}
