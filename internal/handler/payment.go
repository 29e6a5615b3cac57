package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
)

type paymentService interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*domain.PaymentOrder, error)
	CheckStatus(ctx context.Context, orderID, accountID uuid.UUID) (*domain.PaymentOrder, error)
	Sync(ctx context.Context, orderID, accountID uuid.UUID) (*domain.PaymentOrder, error)
	ListOrders(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.PaymentOrder, error)
}

type PaymentHandler struct {
	payments  paymentService
	validator *Validator
}

func NewPaymentHandler(payments paymentService, validator *Validator) *PaymentHandler {
	return &PaymentHandler{payments: payments, validator: validator}
}

type checkoutRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Method string `json:"method" validate:"omitempty,oneof=card sbp crypto"`
}

func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req checkoutRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	order, err := h.payments.CreateCheckout(r.Context(), payment.CheckoutRequest{
		AccountID: accountID,
		Amount:    req.Amount,
		Method:    domain.PaymentMethod(req.Method),
	})
	if err != nil {
		log.Warn("checkout failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", order.OrderID))
	RespondSuccess(w, http.StatusCreated, toOrderDTO(order))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	orderID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	order, err := h.payments.CheckStatus(r.Context(), orderID, accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toOrderDTO(order))
}

func (h *PaymentHandler) Sync(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	orderID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	order, err := h.payments.Sync(r.Context(), orderID, accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment sync failed", "error", err, "order_id", orderID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toOrderDTO(order))
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	p, appErr := pageFromQuery(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	orders, err := h.payments.ListOrders(r.Context(), accountID, p.Limit, p.Offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list payment orders", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]orderDTO, len(orders))
	for i := range orders {
		dtos[i] = toOrderDTO(&orders[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}
