package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"audittrail/internal/audit/models"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 2
)

// Sender posts alerts to a webhook, retrying transport errors and 5xx responses.
type Sender struct {
	client     *http.Client
	maxRetries uint64
	initial    time.Duration
}

type SenderOption func(*Sender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) { s.client = c }
}

// WithRetries sets the retry count after the first attempt and the initial backoff.
func WithRetries(n uint64, initial time.Duration) SenderOption {
	return func(s *Sender) {
		s.maxRetries = n
		s.initial = initial
	}
}

func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		initial:    time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers n to the webhook. A 4xx response fails at once.
func (s *Sender) Send(ctx context.Context, w Webhook, n models.Notification) error {
	body, err := FormatPayload(w.Format, n)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	attempts := 0
	op := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.Headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode))
		default:
			return fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initial
	exp.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(exp, s.maxRetries), ctx)); err != nil {
		return fmt.Errorf("webhook %s failed after %d attempt(s): %w", w.Name, attempts, err)
	}
	return nil
}
