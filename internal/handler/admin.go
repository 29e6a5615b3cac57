package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

type withdrawalReviewer interface {
	Approve(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error)
	MarkPaid(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error)
	Get(ctx context.Context, id uuid.UUID, owner *uuid.UUID) (*domain.WithdrawalDetail, error)
	ListByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.Withdrawal, int, error)
}

type ledgerAdmin interface {
	ManualEntry(ctx context.Context, req ledger.ManualEntryRequest) (*domain.Transaction, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (domain.Reconciliation, error)
}

// AdminHandler serves the operator routes. Role checks happen in middleware.
type AdminHandler struct {
	withdrawals withdrawalReviewer
	ledger      ledgerAdmin
	validator   *Validator
}

func NewAdminHandler(withdrawals withdrawalReviewer, ledger ledgerAdmin, validator *Validator) *AdminHandler {
	return &AdminHandler{withdrawals: withdrawals, ledger: ledger, validator: validator}
}

type decisionRequest struct {
	Comment            string     `json:"comment" validate:"max=1000"`
	ExpectedPayoutDate *time.Time `json:"expected_payout_date"`
}

type manualEntryRequest struct {
	AccountID    string  `json:"account_id" validate:"required,uuid"`
	Type         string  `json:"type" validate:"required,oneof=bonus payout correction refund"`
	Amount       int64   `json:"amount" validate:"ne=0"`
	Description  string  `json:"description" validate:"required,max=500"`
	AdminComment string  `json:"admin_comment" validate:"max=1000"`
	CorrectsID   *string `json:"corrects_id" validate:"omitempty,uuid"`
}

func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	p, appErr := pageFromQuery(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	status := domain.WithdrawalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.WithdrawalStatusRequested
	}
	if !status.IsValid() {
		RespondValidationError(w, []FieldError{{Field: "status", Message: "unknown withdrawal status"}})
		return
	}

	items, total, err := h.withdrawals.ListByStatus(r.Context(), status, p.Limit, p.Offset)
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

func (h *AdminHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	detail, err := h.withdrawals.Get(r.Context(), id, nil)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dto := toWithdrawalDTO(&detail.Withdrawal)
	dto.Transactions = toTransactionDTOs(detail.Transactions)
	RespondSuccess(w, http.StatusOK, dto)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve", h.withdrawals.Approve)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject", h.withdrawals.Reject)
}

func (h *AdminHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "mark_paid", h.withdrawals.MarkPaid)
}

type decideFunc func(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error)

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, action string, fn decideFunc) {
	adminID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	// The body is optional for decisions.
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if !h.validator.Check(w, &req) {
		return
	}

	wd, err := fn(r.Context(), id, withdrawal.Decision{
		ActorID:            adminID,
		Comment:            req.Comment,
		ExpectedPayoutDate: req.ExpectedPayoutDate,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("withdrawal decision failed",
			"error", err,
			"action", action,
			"withdrawal_id", id,
		)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}

func (h *AdminHandler) ManualEntry(w http.ResponseWriter, r *http.Request) {
	adminID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req manualEntryRequest
	if !h.validator.Decode(w, r, &req) {
		return
	}

	entryReq := ledger.ManualEntryRequest{
		AdminID:        adminID,
		AccountID:      uuid.MustParse(req.AccountID),
		Type:           domain.TransactionType(req.Type),
		Amount:         req.Amount,
		Description:    req.Description,
		AdminComment:   req.AdminComment,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.CorrectsID != nil {
		id := uuid.MustParse(*req.CorrectsID)
		entryReq.CorrectsID = &id
	}

	entry, err := h.ledger.ManualEntry(r.Context(), entryReq)
	if err != nil {
		logging.FromContext(r.Context()).Warn("manual entry failed", "error", err, "account_id", req.AccountID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(entry))
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	rec, err := h.ledger.Reconcile(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("reconcile failed", "error", err, "account_id", accountID)
		RespondDomainError(w, err)
		return
	}
	if !rec.Consistent() {
		logging.FromContext(r.Context()).Error("ledger replay mismatch",
			"account_id", accountID,
			"balance", rec.Balance,
			"replayed_balance", rec.ReplayedBalance,
			"frozen", rec.Frozen,
			"replayed_frozen", rec.ReplayedFrozen,
		)
	}

	RespondSuccess(w, http.StatusOK, toReconciliationDTO(rec))
}
