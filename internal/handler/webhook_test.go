package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/domain"
)

const providerSecret = "provider-hmac-secret"

type fakeInbox struct {
	stored []*domain.WebhookEvent
	err    error
}

func (f *fakeInbox) Create(_ context.Context, event *domain.WebhookEvent) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, event)
	return nil
}

func succeededEvent() domain.ProviderEvent {
	return domain.ProviderEvent{
		EventID:         "evt_" + uuid.NewString(),
		Event:           domain.WebhookEventTypePaymentSucceeded,
		OrderID:         uuid.NewString(),
		ProviderOrderID: "po_" + uuid.NewString()[:8],
		Status:          domain.ProviderStatusSucceeded,
		Timestamp:       "2026-02-20T00:00:00Z",
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// deliver posts body with the given signature header; an empty sig omits it.
func deliver(h *WebhookHandler, body []byte, sig string) (*httptest.ResponseRecorder, APIResponse) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(string(body)))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ReceiveProviderWebhook(rec, req)

	var resp APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestVerifySignatureForms(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)
	digest := Sign(body, providerSecret)

	assert.True(t, VerifySignature(body, digest, providerSecret))
	assert.True(t, VerifySignature(body, "sha256="+digest, providerSecret))
	assert.True(t, VerifySignature(body, strings.ToUpper(digest), providerSecret))
	assert.False(t, VerifySignature(body, "", providerSecret))
	assert.False(t, VerifySignature(body, "sha256=", providerSecret))
	assert.False(t, VerifySignature(body, digest, "rotated-secret"))
	assert.False(t, VerifySignature([]byte(`{"event_id":"evt_2"}`), digest, providerSecret))
}

func TestWebhookStoresVerifiedEvent(t *testing.T) {
	inbox := &fakeInbox{}
	h := NewWebhookHandler(inbox, providerSecret)
	event := succeededEvent()
	body := encode(t, event)

	rec, resp := deliver(h, body, Sign(body, providerSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"status": "received"}, resp.Data)

	require.Len(t, inbox.stored, 1)
	stored := inbox.stored[0]
	assert.Equal(t, event.EventID, stored.IdempotencyKey)
	assert.Equal(t, domain.WebhookEventTypePaymentSucceeded, stored.EventType)
	assert.Equal(t, domain.WebhookEventStatusPending, stored.Status)
	assert.JSONEq(t, string(body), string(stored.Payload))
	assert.NotEqual(t, uuid.Nil, stored.ID)
}

func TestWebhookRedeliveryIsAcknowledged(t *testing.T) {
	inbox := &fakeInbox{err: fmt.Errorf("Create: %w", domain.ErrDuplicateOperation)}
	h := NewWebhookHandler(inbox, providerSecret)
	body := encode(t, succeededEvent())

	rec, resp := deliver(h, body, Sign(body, providerSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "already_received"}, resp.Data)
}

func TestWebhookRejections(t *testing.T) {
	refund := succeededEvent()
	refund.Event = domain.WebhookEventTypeRefundSucceeded
	refundBody := encode(t, refund)

	noOrder := succeededEvent()
	noOrder.OrderID = "order-7"

	payout := succeededEvent()
	payout.Event = "payout.succeeded"

	tests := []struct {
		name     string
		body     []byte
		sign     bool
		sig      string
		inboxErr error
		status   int
		code     string
	}{
		{name: "unsigned", body: refundBody, status: http.StatusUnauthorized, code: "INVALID_SIGNATURE"},
		{name: "forged", body: refundBody, sig: Sign(refundBody, "guess"), status: http.StatusUnauthorized, code: "INVALID_SIGNATURE"},
		{name: "not json", body: []byte("event=payment.succeeded"), sign: true, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "empty", body: []byte{}, sign: true, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "only event", body: []byte(`{"event":"payment.succeeded"}`), sign: true, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "order id not uuid", body: encode(t, noOrder), sign: true, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "unsupported event", body: encode(t, payout), sign: true, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "inbox down", body: refundBody, sign: true, inboxErr: errors.New("connection refused"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := &fakeInbox{err: tt.inboxErr}
			h := NewWebhookHandler(inbox, providerSecret)

			sig := tt.sig
			if tt.sign {
				sig = Sign(tt.body, providerSecret)
			}
			rec, resp := deliver(h, tt.body, sig)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Empty(t, inbox.stored)
		})
	}
}
