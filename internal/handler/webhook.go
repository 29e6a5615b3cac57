package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/metrics"
)

const SignatureHeader = "X-Webhook-Signature"

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookHandler authenticates provider callbacks and stores them in the
// inbox. The WebhookProcessor applies them later.
type WebhookHandler struct {
	webhooks webhookEventRepository
	secret   string
}

func NewWebhookHandler(webhooks webhookEventRepository, secret string) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: secret}
}

func validateEvent(e domain.ProviderEvent) []FieldError {
	var errs []FieldError

	if e.EventID == "" {
		errs = append(errs, FieldError{Field: "event_id", Message: "required"})
	}

	if e.Event == "" {
		errs = append(errs, FieldError{Field: "event", Message: "required"})
	} else if !e.Event.IsValid() {
		errs = append(errs, FieldError{Field: "event", Message: "unsupported event type"})
	}

	if e.OrderID == "" {
		errs = append(errs, FieldError{Field: "order_id", Message: "required"})
	} else if _, err := uuid.Parse(e.OrderID); err != nil {
		errs = append(errs, FieldError{Field: "order_id", Message: "must be a valid UUID"})
	}

	if e.ProviderOrderID == "" {
		errs = append(errs, FieldError{Field: "provider_order_id", Message: "required"})
	}

	return errs
}

func (h *WebhookHandler) ReceiveProviderWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), h.secret) {
		log.Warn("webhook signature verification failed")
		metrics.WebhookEvent("unverified", "rejected")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var event domain.ProviderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := validateEvent(event); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	stored := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: event.EventID,
		EventType:      event.Event,
		Payload:        body,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.webhooks.Create(r.Context(), stored); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			log.Info("duplicate webhook received", "event_id", event.EventID, "order_id", event.OrderID)
			metrics.WebhookEvent(string(event.Event), "duplicate")
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
			return
		}
		log.Error("failed to store webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	log.Info("webhook event stored",
		"webhook_event_id", stored.ID,
		"provider_event_id", event.EventID,
		"order_id", event.OrderID,
		"event_type", event.Event,
	)
	metrics.WebhookEvent(string(event.Event), "received")

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts the bare hex digest or one prefixed with "sha256=".
func VerifySignature(body []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(strings.ToLower(signature)))
}
