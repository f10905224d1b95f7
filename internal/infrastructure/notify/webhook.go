package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rezkam/opsflow/internal/application/automation"
	"github.com/rezkam/opsflow/internal/domain"
)

// ErrWebhookRejected is returned when the endpoint answers with a
// non-retryable status.
var ErrWebhookRejected = errors.New("webhook rejected event")

// IdempotencyHeader carries the event ID so receivers can drop redeliveries.
const IdempotencyHeader = "Idempotency-Key"

// WebhookNotifier POSTs assignment events as JSON. Transport errors, 429 and
// 5xx responses are retried with exponential backoff.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	maxRetries uint64
	backoff    time.Duration
}

var _ automation.Notifier = (*WebhookNotifier)(nil)

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookNotifier) {
		w.client = c
	}
}

// WithRetries sets the retry budget and the first backoff step.
func WithRetries(maxRetries int, backoff time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		w.maxRetries = uint64(max(maxRetries, 0))
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

// NewWebhookNotifier creates a webhook sink posting to url. The default
// client propagates trace context and records client spans.
func NewWebhookNotifier(url string, timeout time.Duration, opts ...WebhookOption) *WebhookNotifier {
	w := &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookNotifier) NotifyAssigned(ctx context.Context, event domain.AssignmentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment event: %w", err)
	}

	backoff := retry.WithMaxRetries(w.maxRetries, retry.NewExponential(w.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return w.post(ctx, event.ID, body)
	})
	if err != nil {
		return fmt.Errorf("failed to deliver event %s: %w", event.ID, err)
	}
	return nil
}

func (w *WebhookNotifier) post(ctx context.Context, eventID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, eventID)

	resp, err := w.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("webhook returned %s", resp.Status))
	default:
		return fmt.Errorf("%w: %s", ErrWebhookRejected, resp.Status)
	}
}
