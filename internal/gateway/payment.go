// internal/gateway/payment.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Session is an open payment session on the external gateway.
type Session struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// VerifyResult is the gateway's view of a payment reference.
type VerifyResult struct {
	Reference string `json:"reference"`
	Paid      bool   `json:"paid"`
	Raw       json.RawMessage
}

// PaymentClient talks to the external card/mobile-money gateway. The wire
// format is the gateway's concern; completion semantics live in the
// purchase orchestrator.
type PaymentClient interface {
	CreateSession(ctx context.Context, reference string, amount float64, currency string) (*Session, error)
	VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error)
}

// HTTPPaymentClient is the production PaymentClient. Every call carries a
// bounded timeout so a slow gateway leaves purchases pending, never hanging.
type HTTPPaymentClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPaymentClient(baseURL, apiKey string, timeout time.Duration) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPPaymentClient) CreateSession(ctx context.Context, reference string, amount float64, currency string) (*Session, error) {
	payload := map[string]interface{}{
		"reference": reference,
		"amount":    amount,
		"currency":  currency,
	}

	var session Session
	if err := c.post(ctx, "/v1/sessions", payload, &session); err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return &session, nil
}

func (c *HTTPPaymentClient) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway verify returned status %d", resp.StatusCode)
	}

	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}

	return &result, nil
}

func (c *HTTPPaymentClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
