package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/josh-kwaku/label-ledger/internal/domain"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/service/payment"
)

// CheckoutClient talks to the hosted checkout provider. Requests are
// authenticated with the shop id and secret key as basic auth.
type CheckoutClient struct {
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
	httpClient *http.Client
}

func NewCheckoutClient(baseURL, shopID, secretKey, returnURL string) *CheckoutClient {
	return &CheckoutClient{
		baseURL:   baseURL,
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sessionPayload struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
	Description string `json:"description"`
	ReturnURL   string `json:"return_url"`
}

type sessionResponse struct {
	ID              string                `json:"id"`
	Status          domain.ProviderStatus `json:"status"`
	ConfirmationURL string                `json:"confirmation_url"`
}

func (c *CheckoutClient) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	body, err := json.Marshal(sessionPayload{
		OrderID:     req.OrderID.String(),
		Amount:      domain.FormatAmount(req.Amount),
		Currency:    "RUB",
		Method:      string(req.Method),
		Description: req.Description,
		ReturnURL:   c.returnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("CreateSession: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("CreateSession: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.OrderID.String())

	var out sessionResponse
	if err := c.do(ctx, httpReq, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}
	return &payment.Session{ProviderOrderID: out.ID, Status: out.Status, ConfirmationURL: out.ConfirmationURL}, nil
}

func (c *CheckoutClient) GetSession(ctx context.Context, providerOrderID string) (*payment.Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions/"+url.PathEscape(providerOrderID), nil)
	if err != nil {
		return nil, fmt.Errorf("GetSession: build request: %w", err)
	}

	var out sessionResponse
	if err := c.do(ctx, httpReq, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return &payment.Session{ProviderOrderID: out.ID, Status: out.Status, ConfirmationURL: out.ConfirmationURL}, nil
}

func (c *CheckoutClient) do(ctx context.Context, req *http.Request, want int, out any) error {
	log := logging.FromContext(ctx)
	req.SetBasicAuth(c.shopID, c.secretKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("checkout provider responded",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != want {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
