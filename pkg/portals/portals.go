// Package portals holds the HTTP clients for the external services the
// engine settles through: the router/zap aggregator, the intent order
// book, and the vault metadata oracle.
package portals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// apiError tries to surface the server's own message instead of a bare
// status code.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// doJSON issues a request and decodes a JSON body into out, translating
// non-2xx responses into errors carrying the server's message when one
// can be extracted.
func doJSON(ctx context.Context, client *http.Client, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail apiError
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil {
			if detail.Message != "" {
				return fmt.Errorf("API error (status %d): %s", resp.StatusCode, detail.Message)
			}
			if detail.Error != "" {
				return fmt.Errorf("API error (status %d): %s", resp.StatusCode, detail.Error)
			}
		}
		return fmt.Errorf("API returned status code %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
