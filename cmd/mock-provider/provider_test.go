package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/handler"
	"github.com/josh-kwaku/label-ledger/internal/service"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
)

type inbox struct {
	mu     sync.Mutex
	events []*domain.WebhookEvent
}

func (i *inbox) Create(_ context.Context, e *domain.WebhookEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, e)
	return nil
}

func startProvider(t *testing.T, webhookURL string) *httptest.Server {
	t.Helper()
	p := newProvider(config{
		WebhookURL:    webhookURL,
		WebhookSecret: "hook-secret",
		ShopID:        "shop",
		SecretKey:     "key",
		PublicURL:     "http://provider.test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	p.routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_CheckoutRoundTrip(t *testing.T) {
	box := &inbox{}
	api := httptest.NewServer(http.HandlerFunc(handler.NewWebhookHandler(box, "hook-secret").ReceiveProviderWebhook))
	t.Cleanup(api.Close)

	srv := startProvider(t, api.URL)
	client := service.NewCheckoutClient(srv.URL, "shop", "key", "http://app.test/return")
	ctx := context.Background()

	orderID := uuid.New()
	sess, err := client.CreateSession(ctx, payment.SessionRequest{
		OrderID: orderID,
		Amount:  150050,
		Method:  domain.PaymentMethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStatusPending, sess.Status)
	assert.Contains(t, sess.ConfirmationURL, sess.ProviderOrderID)

	resp, err := http.Post(srv.URL+"/sessions/"+sess.ProviderOrderID+"/succeed?event_id=evt-1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := client.GetSession(ctx, sess.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStatusSucceeded, got.Status)

	require.Len(t, box.events, 1)
	stored := box.events[0]
	assert.Equal(t, "evt-1", stored.IdempotencyKey)
	assert.Equal(t, domain.WebhookEventTypePaymentSucceeded, stored.EventType)

	var ev domain.ProviderEvent
	require.NoError(t, json.Unmarshal(stored.Payload, &ev))
	assert.Equal(t, orderID.String(), ev.OrderID)
	assert.Equal(t, sess.ProviderOrderID, ev.ProviderOrderID)
}

func TestProvider_RejectsBadCredentials(t *testing.T) {
	srv := startProvider(t, "http://unused.test")
	client := service.NewCheckoutClient(srv.URL, "shop", "wrong", "")

	_, err := client.CreateSession(context.Background(), payment.SessionRequest{
		OrderID: uuid.New(),
		Amount:  1000,
		Method:  domain.PaymentMethodCard,
	})
	require.Error(t, err)
}

func TestProvider_UnknownSession(t *testing.T) {
	srv := startProvider(t, "http://unused.test")

	resp, err := http.Post(srv.URL+"/sessions/po_missing/succeed", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
