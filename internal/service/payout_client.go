package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/withdrawal"
)

type PayoutClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPayoutClient returns nil when no payout provider is configured, which
// leaves approved withdrawals for manual payout.
func NewPayoutClient(baseURL string) *PayoutClient {
	if baseURL == "" {
		return nil
	}
	return &PayoutClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type payoutPayload struct {
	WithdrawalID  string `json:"withdrawal_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	BankName      string `json:"bank_name"`
	CardLast4     string `json:"card_last4"`
	RecipientName string `json:"recipient_name"`
}

func (c *PayoutClient) SubmitPayout(ctx context.Context, req withdrawal.PayoutRequest) error {
	if c == nil {
		return nil
	}
	log := logging.FromContext(ctx)

	card := req.Details.CardNumber
	if len(card) > 4 {
		card = card[len(card)-4:]
	}
	payload := payoutPayload{
		WithdrawalID:  req.WithdrawalID.String(),
		Amount:        domain.FormatAmount(req.Amount),
		Method:        string(req.Details.Method),
		BankName:      req.Details.BankName,
		CardLast4:     card,
		RecipientName: req.Details.RecipientName,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("SubmitPayout: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("SubmitPayout: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.WithdrawalID.String())

	start := time.Now()
	log.Info("payout request sent", "withdrawal_id", req.WithdrawalID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("SubmitPayout: send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("payout response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SubmitPayout: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
