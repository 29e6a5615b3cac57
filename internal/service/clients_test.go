package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

func TestCheckoutClient_CreateAndGetSession(t *testing.T) {
	orderID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop-1", user)
		assert.Equal(t, "secret", pass)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			var body sessionPayload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1500.50", body.Amount)
			assert.Equal(t, orderID.String(), body.OrderID)
			assert.Equal(t, orderID.String(), r.Header.Get("Idempotence-Key"))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(sessionResponse{ID: "sess-1", Status: domain.ProviderStatusPending, ConfirmationURL: "https://pay/sess-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/sessions/sess-1":
			json.NewEncoder(w).Encode(sessionResponse{ID: "sess-1", Status: domain.ProviderStatusSucceeded})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCheckoutClient(srv.URL, "shop-1", "secret", "https://app/return")
	ctx := context.Background()

	s, err := c.CreateSession(ctx, payment.SessionRequest{OrderID: orderID, Amount: 150050, Method: domain.PaymentMethodCard})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ProviderOrderID)
	assert.Equal(t, "https://pay/sess-1", s.ConfirmationURL)

	s, err = c.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStatusSucceeded, s.Status)

	_, err = c.GetSession(ctx, "missing")
	require.Error(t, err)
}

func TestPayoutClient_SubmitPayout(t *testing.T) {
	var got payoutPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	id := uuid.New()
	err := NewPayoutClient(srv.URL).SubmitPayout(context.Background(), withdrawal.PayoutRequest{
		WithdrawalID: id,
		Amount:       100000,
		Details:      domain.PayoutDetails{Method: domain.PayoutMethodCard, BankName: "Sber", CardNumber: "****4242", RecipientName: "A B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", got.Amount)
	assert.Equal(t, "4242", got.CardLast4)
	assert.Equal(t, id.String(), got.WithdrawalID)
}

func TestPayoutClient_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewPayoutClient(srv.URL).SubmitPayout(context.Background(), withdrawal.PayoutRequest{WithdrawalID: uuid.New(), Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPayoutClient_Unconfigured(t *testing.T) {
	c := NewPayoutClient("")
	require.Nil(t, c)
	require.NoError(t, c.SubmitPayout(context.Background(), withdrawal.PayoutRequest{}))
}
