package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	attemptTimeout = 5 * time.Second
	maxAttempts    = 3
)

var (
	webhookClient = &http.Client{Timeout: attemptTimeout}
	backoffStep   = time.Second
)

// Send delivers one escalation to a webhook. Server errors and transport
// failures are retried with a linear backoff; a 4xx answer is final.
// Cancelling ctx abandons delivery, including any pending backoff.
func Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := backoff(ctx, time.Duration(attempt-1)*backoffStep); err != nil {
				return fmt.Errorf("escalation %s abandoned: %w", event.Event, err)
			}
		}

		status, err := post(ctx, cfg, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("escalation %s abandoned: %w", event.Event, ctx.Err())
			}
			lastErr = err
		case status < 300:
			return nil
		case status < 500:
			return fmt.Errorf("webhook rejected %s: HTTP %d", event.Event, status)
		default:
			lastErr = fmt.Errorf("webhook server error: HTTP %d", status)
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

func post(ctx context.Context, cfg AlertConfig, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func backoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
