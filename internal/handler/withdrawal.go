package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, req withdrawal.Request) (*domain.Withdrawal, error)
	Cancel(ctx context.Context, id, accountID uuid.UUID) (*domain.Withdrawal, error)
	Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*domain.WithdrawalDetail, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Withdrawal, int, error)
}

type WithdrawalHandler struct {
	withdrawals withdrawalService
	validator   *Validator
}

func NewWithdrawalHandler(withdrawals withdrawalService, validator *Validator) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, validator: validator}
}

type payoutDetailsRequest struct {
	Method         string `json:"method" validate:"omitempty,oneof=card sbp"`
	BankName       string `json:"bank_name" validate:"required,max=200"`
	CardNumber     string `json:"card_number" validate:"required,max=32"`
	RecipientName  string `json:"recipient_name" validate:"required,max=200"`
	AdditionalInfo string `json:"additional_info" validate:"max=500"`
}

type createWithdrawalRequest struct {
	Amount        int64                `json:"amount" validate:"gt=0"`
	PayoutDetails payoutDetailsRequest `json:"payout_details"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWithdrawalRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	wd, err := h.withdrawals.RequestWithdrawal(r.Context(), withdrawal.Request{
		AccountID: accountID,
		Amount:    req.Amount,
		PayoutDetails: domain.PayoutDetails{
			Method:         domain.PayoutMethod(req.PayoutDetails.Method),
			BankName:       req.PayoutDetails.BankName,
			CardNumber:     req.PayoutDetails.CardNumber,
			RecipientName:  req.PayoutDetails.RecipientName,
			AdditionalInfo: req.PayoutDetails.AdditionalInfo,
		},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		log.Warn("withdrawal request failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/withdrawals/%s", wd.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wd))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
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

	items, total, err := h.withdrawals.List(r.Context(), accountID, p.Limit, p.Offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list withdrawals", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, pageDTO[withdrawalDTO]{
		Items:  toWithdrawalDTOs(items),
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	detail, err := h.withdrawals.Get(r.Context(), id, &accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := toWithdrawalDTO(&detail.Withdrawal)
	dto.Transactions = toTransactionDTOs(detail.Transactions)
	RespondSuccess(w, http.StatusOK, dto)
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	wd, err := h.withdrawals.Cancel(r.Context(), id, accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal cancel failed", "error", err, "withdrawal_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}
