package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/handler"
)

type session struct {
	ID              string                `json:"id"`
	OrderID         string                `json:"order_id"`
	Amount          int64                 `json:"-"`
	Method          string                `json:"method"`
	Status          domain.ProviderStatus `json:"status"`
	ConfirmationURL string                `json:"confirmation_url"`
}

type createSessionRequest struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
}

type payoutRequest struct {
	WithdrawalID  string `json:"withdrawal_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	BankName      string `json:"bank_name"`
	CardLast4     string `json:"card_last4"`
	RecipientName string `json:"recipient_name"`
}

// provider imitates the checkout and payout provider in memory. Completing a
// session delivers a signed callback to the ledger API.
type provider struct {
	cfg        config
	logger     *slog.Logger
	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]*session
	payouts  map[string]payoutRequest
}

func newProvider(cfg config, logger *slog.Logger) *provider {
	return &provider{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		sessions:   make(map[string]*session),
		payouts:    make(map[string]payoutRequest),
	}
}

func (p *provider) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /sessions", p.authorized(p.createSession))
	mux.HandleFunc("GET /sessions/{id}", p.authorized(p.getSession))
	mux.HandleFunc("POST /sessions/{id}/succeed", p.settle(domain.WebhookEventTypePaymentSucceeded, domain.ProviderStatusSucceeded))
	mux.HandleFunc("POST /sessions/{id}/cancel", p.settle(domain.WebhookEventTypePaymentCanceled, domain.ProviderStatusCanceled))
	mux.HandleFunc("POST /sessions/{id}/refund", p.settle(domain.WebhookEventTypeRefundSucceeded, domain.ProviderStatusSucceeded))
	mux.HandleFunc("POST /payouts", p.createPayout)
}

func (p *provider) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.cfg.ShopID != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != p.cfg.ShopID || pass != p.cfg.SecretKey {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
				return
			}
		}
		next(w, r)
	}
}

func (p *provider) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil || amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}
	if _, err := uuid.Parse(req.OrderID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	s := &session{
		ID:      "po_" + uuid.NewString(),
		OrderID: req.OrderID,
		Amount:  amount,
		Method:  req.Method,
		Status:  domain.ProviderStatusPending,
	}
	s.ConfirmationURL = fmt.Sprintf("%s/checkout/%s", p.cfg.PublicURL, s.ID)

	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()

	p.logger.Info("session created", "session_id", s.ID, "order_id", s.OrderID, "amount", req.Amount)
	writeJSON(w, http.StatusCreated, s)
}

func (p *provider) getSession(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s, ok := p.sessions[r.PathValue("id")]
	var snapshot session
	if ok {
		snapshot = *s
	}
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// settle moves a session to status and delivers the matching callback.
// Sending it twice is allowed and is how webhook retries are simulated.
func (p *provider) settle(event domain.WebhookEventType, status domain.ProviderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		s, ok := p.sessions[r.PathValue("id")]
		if ok {
			s.Status = status
		}
		var snapshot session
		if ok {
			snapshot = *s
		}
		p.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}

		ev := domain.ProviderEvent{
			EventID:         r.URL.Query().Get("event_id"),
			Event:           event,
			OrderID:         snapshot.OrderID,
			ProviderOrderID: snapshot.ID,
			Status:          status,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		}
		if ev.EventID == "" {
			ev.EventID = uuid.NewString()
		}

		code, err := p.deliver(r.Context(), ev)
		if err != nil {
			p.logger.Error("webhook delivery failed", "error", err, "session_id", snapshot.ID)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"event_id": ev.EventID, "delivered_status": code})
	}
}

func (p *provider) deliver(ctx context.Context, ev domain.ProviderEvent) (int, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("deliver: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("deliver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SignatureHeader, handler.Sign(body, p.cfg.WebhookSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver: %w", err)
	}
	defer resp.Body.Close()

	p.logger.Info("webhook delivered", "event_id", ev.EventID, "event", ev.Event, "status", resp.StatusCode)
	return resp.StatusCode, nil
}

func (p *provider) createPayout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotence-Key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Idempotence-Key header required"})
		return
	}

	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if _, err := domain.ParseAmount(req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	p.mu.Lock()
	if _, seen := p.payouts[key]; !seen {
		p.payouts[key] = req
	}
	p.mu.Unlock()

	p.logger.Info("payout accepted", "withdrawal_id", req.WithdrawalID, "amount", req.Amount)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "withdrawal_id": req.WithdrawalID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
