// Package storefront carries the outbound call envelope to the storefront
// platform. The platform's response body is an opaque {status, message} pair;
// this adapter never interprets it beyond success or failure, and folds HTTP
// status codes into the failure text so the caller can classify it.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/stocksync/backend/internal/domain/syncqueue"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 1 * 1024 * 1024 // 1MB max response

// HTTPSyncTriggerConfig holds configuration for the sync trigger adapter.
type HTTPSyncTriggerConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Validate checks the configuration.
func (c *HTTPSyncTriggerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("storefront: trigger URL is required")
	}
	return nil
}

// HTTPSyncTrigger implements the sync trigger port over a plain HTTP POST.
type HTTPSyncTrigger struct {
	config     HTTPSyncTriggerConfig
	httpClient *http.Client
}

var _ syncqueue.SyncTrigger = (*HTTPSyncTrigger)(nil)

// NewHTTPSyncTrigger creates a new sync trigger adapter.
func NewHTTPSyncTrigger(config HTTPSyncTriggerConfig) (*HTTPSyncTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPSyncTrigger{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// syncRequest is the call envelope sent to the platform.
type syncRequest struct {
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// syncResponse is the opaque platform reply.
type syncResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Trigger pushes the current state of the product to the storefront.
// Transport failures keep the client error text; HTTP failures carry the
// numeric status code in the message.
func (t *HTTPSyncTrigger) Trigger(ctx context.Context, productID uuid.UUID, reason syncqueue.Reason) error {
	bodyBytes, err := json.Marshal(syncRequest{
		ProductID: productID.String(),
		Reason:    string(reason),
	})
	if err != nil {
		return fmt.Errorf("storefront: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("storefront: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storefront: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("storefront: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("storefront: HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr syncResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fmt.Errorf("storefront: failed to parse response: %w", err)
	}

	if sr.Status != "ok" && sr.Status != "success" {
		return fmt.Errorf("storefront: sync rejected: %s - %s", sr.Status, sr.Message)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
