package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/service/ledger"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

type fakeReviewer struct {
	decisions []withdrawal.Decision
	status    domain.WithdrawalStatus
}

func (f *fakeReviewer) record(to domain.WithdrawalStatus) func(context.Context, uuid.UUID, withdrawal.Decision) (*domain.Withdrawal, error) {
	return func(_ context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error) {
		if _, err := f.status.CheckTransition(to); err != nil {
			return nil, fmt.Errorf("transition: %w", err)
		}
		f.decisions = append(f.decisions, d)
		f.status = to
		return &domain.Withdrawal{ID: id, Status: to}, nil
	}
}

func (f *fakeReviewer) Approve(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error) {
	return f.record(domain.WithdrawalStatusApproved)(ctx, id, d)
}

func (f *fakeReviewer) Reject(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error) {
	return f.record(domain.WithdrawalStatusRejected)(ctx, id, d)
}

func (f *fakeReviewer) MarkPaid(ctx context.Context, id uuid.UUID, d withdrawal.Decision) (*domain.Withdrawal, error) {
	return f.record(domain.WithdrawalStatusPaid)(ctx, id, d)
}

func (f *fakeReviewer) Get(_ context.Context, id uuid.UUID, _ *uuid.UUID) (*domain.WithdrawalDetail, error) {
	return &domain.WithdrawalDetail{Withdrawal: domain.Withdrawal{ID: id, Status: f.status}}, nil
}

func (f *fakeReviewer) ListByStatus(_ context.Context, status domain.WithdrawalStatus, _, _ int) ([]domain.Withdrawal, int, error) {
	if status != f.status {
		return nil, 0, nil
	}
	return []domain.Withdrawal{{ID: uuid.New(), Status: status}}, 1, nil
}

type fakeLedgerAdmin struct {
	entry *ledger.ManualEntryRequest
	rec   domain.Reconciliation
}

func (f *fakeLedgerAdmin) ManualEntry(_ context.Context, req ledger.ManualEntryRequest) (*domain.Transaction, error) {
	f.entry = &req
	return &domain.Transaction{ID: uuid.New(), AccountID: req.AccountID, Type: req.Type, Amount: req.Amount}, nil
}

func (f *fakeLedgerAdmin) Reconcile(_ context.Context, accountID uuid.UUID) (domain.Reconciliation, error) {
	f.rec.AccountID = accountID
	return f.rec, nil
}

func newAdminMux(h *AdminHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/withdrawals", h.ListWithdrawals)
	mux.HandleFunc("POST /admin/withdrawals/{id}/approve", h.Approve)
	mux.HandleFunc("POST /admin/withdrawals/{id}/reject", h.Reject)
	mux.HandleFunc("POST /admin/withdrawals/{id}/mark-paid", h.MarkPaid)
	mux.HandleFunc("POST /admin/transactions", h.ManualEntry)
	mux.HandleFunc("GET /admin/accounts/{id}/reconcile", h.Reconcile)
	return mux
}

func TestAdminHandler_Decisions(t *testing.T) {
	admin := uuid.New()
	reviewer := &fakeReviewer{status: domain.WithdrawalStatusRequested}
	mux := newAdminMux(NewAdminHandler(reviewer, &fakeLedgerAdmin{}, NewValidator()))
	id := uuid.NewString()

	post := func(path, body string) *httptest.ResponseRecorder {
		req := withCaller(httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)), admin)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}

	rr := post("/admin/withdrawals/"+id+"/mark-paid", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = post("/admin/withdrawals/"+id+"/approve", `{"comment":"ok","expected_payout_date":"2026-11-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, reviewer.decisions, 1)
	assert.Equal(t, admin, reviewer.decisions[0].ActorID)
	assert.Equal(t, "ok", reviewer.decisions[0].Comment)
	require.NotNil(t, reviewer.decisions[0].ExpectedPayoutDate)

	rr = post("/admin/withdrawals/"+id+"/mark-paid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "paid", decodeResponse(t, rr).Data.(map[string]any)["status"])

	rr = post("/admin/withdrawals/"+id+"/reject", `{"comment":"too late"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = post("/admin/withdrawals/"+id+"/approve", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminHandler_ListWithdrawals(t *testing.T) {
	mux := newAdminMux(NewAdminHandler(&fakeReviewer{status: domain.WithdrawalStatusApproved}, &fakeLedgerAdmin{}, NewValidator()))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/withdrawals?status=approved", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeResponse(t, rr).Data.(map[string]any)
	assert.EqualValues(t, 1, data["total"])

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/withdrawals?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminHandler_ManualEntry(t *testing.T) {
	admin := uuid.New()
	account := uuid.New()
	ledgerAdmin := &fakeLedgerAdmin{}
	mux := newAdminMux(NewAdminHandler(&fakeReviewer{}, ledgerAdmin, NewValidator()))

	body := fmt.Sprintf(`{"account_id":%q,"type":"bonus","amount":5000,"description":"launch bonus"}`, account)
	req := withCaller(httptest.NewRequest(http.MethodPost, "/admin/transactions", strings.NewReader(body)), admin)
	req.Header.Set("Idempotency-Key", "bonus-1")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, ledgerAdmin.entry)
	assert.Equal(t, admin, ledgerAdmin.entry.AdminID)
	assert.Equal(t, account, ledgerAdmin.entry.AccountID)
	assert.Equal(t, domain.TransactionTypeBonus, ledgerAdmin.entry.Type)
	assert.Equal(t, "bonus-1", ledgerAdmin.entry.IdempotencyKey)

	body = fmt.Sprintf(`{"account_id":%q,"type":"deposit","amount":5000,"description":"x"}`, account)
	req = withCaller(httptest.NewRequest(http.MethodPost, "/admin/transactions", strings.NewReader(body)), admin)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeResponse(t, rr).Error.Code)
}

func TestAdminHandler_Reconcile(t *testing.T) {
	ledgerAdmin := &fakeLedgerAdmin{rec: domain.Reconciliation{Balance: 500, ReplayedBalance: 500, EntryCount: 3}}
	mux := newAdminMux(NewAdminHandler(&fakeReviewer{}, ledgerAdmin, NewValidator()))
	account := uuid.New()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/accounts/"+account.String()+"/reconcile", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeResponse(t, rr).Data.(map[string]any)
	assert.Equal(t, true, data["consistent"])
	assert.Equal(t, account.String(), data["account_id"])
}
