// ABOUTME: Settlement of verified receipts with the payment facilitator
// ABOUTME: Posts the receipt to the facilitator's /settle endpoint under a deadline

package atxp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Settler finalises a verified payment before the call runs.
type Settler interface {
	Settle(ctx context.Context, receipt *Receipt, token string) error
}

// HTTPSettler settles receipts against a facilitator over HTTP.
type HTTPSettler struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSettler creates a settler for the facilitator at baseURL. Each
// settlement is bounded by timeout.
func NewHTTPSettler(baseURL string, timeout time.Duration, client *http.Client) *HTTPSettler {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSettler{
		url:     strings.TrimRight(baseURL, "/") + "/settle",
		client:  client,
		timeout: timeout,
	}
}

type settleRequest struct {
	Receipt     string  `json:"receipt"`
	ReceiptID   string  `json:"receipt_id"`
	Destination string  `json:"destination"`
	Amount      float64 `json:"amount"`
}

// Settle posts the receipt. A timeout or non-2xx answer is an error.
func (s *HTTPSettler) Settle(ctx context.Context, receipt *Receipt, token string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	body, err := json.Marshal(settleRequest{
		Receipt:     token,
		ReceiptID:   receipt.ID,
		Destination: receipt.Destination,
		Amount:      receipt.Amount,
	})
	if err != nil {
		return fmt.Errorf("encoding settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating settle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSettlement, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: facilitator returned status %d", ErrSettlement, resp.StatusCode)
	}
	return nil
}
