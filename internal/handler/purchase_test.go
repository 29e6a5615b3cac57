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
	"github.com/josh-kwaku/label-ledger/internal/service/purchase"
)

type fakePurchases struct {
	paid      *domain.Transaction
	submitted bool
}

func (f *fakePurchases) CreateResource(_ context.Context, accountID uuid.UUID) (*domain.Resource, error) {
	return &domain.Resource{ID: uuid.New(), AccountID: accountID, Status: domain.ResourceStatusDraft}, nil
}

func (f *fakePurchases) GetResource(_ context.Context, id, accountID uuid.UUID) (*domain.Resource, error) {
	return &domain.Resource{ID: id, AccountID: accountID, Status: domain.ResourceStatusDraft}, nil
}

func (f *fakePurchases) Purchase(_ context.Context, req purchase.Request) (*domain.Transaction, error) {
	if f.paid != nil {
		return f.paid, fmt.Errorf("Purchase: %w", domain.ErrDuplicateOperation)
	}
	f.paid = &domain.Transaction{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		Type:      domain.TransactionTypePurchase,
		Amount:    -req.Amount,
		Reference: domain.Reference{Type: domain.ReferenceResource, ID: req.ResourceID.String()},
	}
	return f.paid, nil
}

func (f *fakePurchases) RequestRefund(_ context.Context, req purchase.RefundRequest) (*domain.Transaction, error) {
	if f.submitted {
		return nil, fmt.Errorf("RequestRefund: %w", domain.ErrRefundNotAllowed)
	}
	if f.paid == nil || f.paid.ID != req.PaymentID {
		return nil, fmt.Errorf("RequestRefund: %w", domain.ErrNotFound)
	}
	return &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeRefund, Amount: -f.paid.Amount}, nil
}

func (f *fakePurchases) Submit(_ context.Context, resourceID, accountID uuid.UUID) (*domain.Resource, error) {
	f.submitted = true
	return &domain.Resource{ID: resourceID, AccountID: accountID, Status: domain.ResourceStatusSubmitted}, nil
}

func TestPurchaseHandler_PurchaseRefundSubmit(t *testing.T) {
	caller := uuid.New()
	svc := &fakePurchases{}
	h := NewPurchaseHandler(svc, NewValidator())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /purchases", h.Purchase)
	mux.HandleFunc("POST /refunds", h.Refund)
	mux.HandleFunc("POST /resources/{id}/submit", h.Submit)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := withCaller(httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)), caller)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr
	}

	resourceID := uuid.NewString()
	rr := post("/purchases", fmt.Sprintf(`{"resource_id":%q,"amount":2500}`, resourceID))
	require.Equal(t, http.StatusCreated, rr.Code)
	paymentID := decodeResponse(t, rr).Data.(map[string]any)["id"].(string)

	rr = post("/purchases", fmt.Sprintf(`{"resource_id":%q,"amount":2500}`, resourceID))
	require.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeResponse(t, rr)
	assert.Equal(t, "DUPLICATE_OPERATION", resp.Error.Code)
	assert.Equal(t, paymentID, resp.Error.Details.(map[string]any)["id"])

	rr = post("/refunds", `{"payment_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post("/refunds", fmt.Sprintf(`{"payment_id":%q}`, paymentID))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2500, decodeResponse(t, rr).Data.(map[string]any)["amount"])

	rr = post("/resources/"+resourceID+"/submit", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = post("/refunds", fmt.Sprintf(`{"payment_id":%q}`, paymentID))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "REFUND_NOT_ALLOWED", decodeResponse(t, rr).Error.Code)
}
