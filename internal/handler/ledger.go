package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
)

type ledgerReader interface {
	Summary(ctx context.Context, accountID uuid.UUID) (domain.BalanceSummary, error)
	History(ctx context.Context, accountID uuid.UUID, f domain.TransactionFilter) ([]domain.Transaction, int, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

type LedgerHandler struct {
	ledger ledgerReader
}

func NewLedgerHandler(ledger ledgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	summary, err := h.ledger.Summary(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("balance lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSummaryDTO(summary))
}

func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
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

	filter := domain.TransactionFilter{Limit: p.Limit, Offset: p.Offset}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = domain.TransactionType(t)
		if !filter.Type.IsValid() {
			RespondValidationError(w, []FieldError{{Field: "type", Message: "unknown transaction type"}})
			return
		}
	}

	entries, total, err := h.ledger.History(r.Context(), accountID, filter)
	if err != nil {
		logging.FromContext(r.Context()).Error("transaction history failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, pageDTO[transactionDTO]{
		Items:  toTransactionDTOs(entries),
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

func (h *LedgerHandler) Transaction(w http.ResponseWriter, r *http.Request) {
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

	entry, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if entry.AccountID != accountID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(entry))
}
