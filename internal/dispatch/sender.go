package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sender delivers one report to the evaluator.
type Sender interface {
	Send(ctx context.Context, sessionID string, report []byte) error
}

// StatusError is a non-2xx response from the evaluator.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callback status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// HTTPSender POSTs reports as JSON.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSender(url, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// IdempotencyKey is stable per session so the evaluator can discard repeats
// caused by retries.
func IdempotencyKey(sessionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lure:report:"+sessionID)).String()
}

func (h *HTTPSender) Send(ctx context.Context, sessionID string, report []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(report))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", IdempotencyKey(sessionID))
	if h.apiKey != "" {
		req.Header.Set("x-api-key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// CloseIdleConnections releases pooled connections.
func (h *HTTPSender) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
