package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	backoffStep = 10 * time.Millisecond
}

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventDeny}},
	}, zerolog.Nop())

	d.Dispatch(context.Background(), AlertEvent{Event: EventDeny, Action: "refund"})
	d.Dispatch(context.Background(), AlertEvent{Event: EventRunAborted})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	d := NewDispatcher([]AlertConfig{
		{URL: srv1.URL, Format: "generic", Events: []string{EventEvaluationFailed}},
		{URL: srv2.URL, Format: "slack", Events: []string{EventDeny, EventEvaluationFailed}},
	}, zerolog.Nop())

	d.Dispatch(context.Background(), AlertEvent{Event: EventEvaluationFailed, Criteria: []string{"tone"}})
	d.Wait()

	if called.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called.Load())
	}
}

func TestNilDispatcherIsNoop(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	if d != nil {
		t.Fatal("expected nil dispatcher for empty config")
	}
	d.Dispatch(context.Background(), AlertEvent{Event: EventDeny})
	d.Wait()
}

func TestSendRetriesOn5xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(context.Background(), AlertConfig{URL: srv.URL}, AlertEvent{Event: EventDeny}); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestSendNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL}, AlertEvent{Event: EventDeny})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestSendStopsWhenContextCancelled(t *testing.T) {
	prev := backoffStep
	backoffStep = time.Hour
	defer func() { backoffStep = prev }()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := Send(ctx, AlertConfig{URL: srv.URL}, AlertEvent{Event: EventDeny})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("delivery outlived cancellation by %v", elapsed)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before the backoff was cut short, got %d", attempts.Load())
	}
}

func TestDispatchWaitReturnsAfterCancel(t *testing.T) {
	prev := backoffStep
	backoffStep = time.Hour
	defer func() { backoffStep = prev }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventDeny}},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, AlertEvent{Event: EventDeny})
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked after the context was cancelled")
	}
}

func TestSendCustomHeaders(t *testing.T) {
	var got string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Token")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"X-Token": "abc"}}
	if err := Send(context.Background(), cfg, AlertEvent{Event: EventDeny, Action: "refund", RunID: 7}); err != nil {
		t.Fatal(err)
	}
	if got != "abc" {
		t.Errorf("expected header abc, got %q", got)
	}
	var ev AlertEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Action != "refund" || ev.RunID != 7 {
		t.Errorf("unexpected generic payload: %+v", ev)
	}
}

func TestSlackFormat(t *testing.T) {
	data, err := FormatPayload("slack", AlertEvent{
		Event:  EventEvaluationFailed,
		Intent: "Refund $5000 to customer C-1",
		RunID:  2, Criteria: []string{"tone", "accuracy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{"intentgov: evaluation_failed", "Refund $5000 to customer C-1", "tone, accuracy"} {
		if !strings.Contains(s, want) {
			t.Errorf("slack payload missing %q: %s", want, s)
		}
	}
}

func TestPagerDutySeverity(t *testing.T) {
	data, err := FormatPayload("pagerduty", AlertEvent{Event: EventRunAborted, RunID: 4})
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Payload struct {
			Severity string `json:"severity"`
			Summary  string `json:"summary"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Payload.Severity != "critical" || payload.Payload.Summary != "intentgov run_aborted: run 4" {
		t.Errorf("unexpected payload: %+v", payload.Payload)
	}
}

func TestValidate(t *testing.T) {
	good := AlertConfig{URL: "https://hooks.example.com/x", Format: "slack", Events: []string{EventDeny}}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := []AlertConfig{
		{Format: "slack", Events: []string{EventDeny}},
		{URL: "u", Format: "teams", Events: []string{EventDeny}},
		{URL: "u"},
		{URL: "u", Events: []string{"require_approval"}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
