// internal/carrier/sender.go
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Batch is one outbound submission: a body and the concrete recipient list.
type Batch struct {
	Reference  string   `json:"reference"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

// Sender submits an SMS batch to the carrier. A returned error means the
// whole batch was rejected before any recipient confirmation; per-recipient
// outcomes arrive later via delivery callbacks.
type Sender interface {
	SendBatch(ctx context.Context, batch *Batch) error
}

// HTTPSender is the production Sender with a bounded request timeout.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSender(baseURL, apiKey string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) SendBatch(ctx context.Context, batch *Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("carrier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("carrier rejected batch with status %d", resp.StatusCode)
	}

	return nil
}
