package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
)

const testConstitution = `
rules:
  - name: refund-large
    match: {action: refund, args: {amount: ">1000"}}
    effect: confirm
    reason: Refunds over $1000 require human confirmation.
  - name: refund-competitor
    match: {action: refund, args: {note: {contains: competitor}}}
    effect: deny
    reason: Refunds citing competitors go to retention.
  - name: refund-small
    match: {action: refund}
    effect: allow
`

// canned answers confirmations in order and counts how often it was asked.
type canned struct {
	mu      sync.Mutex
	answers []bool
	asked   int
}

func (c *canned) Decide(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	approved := c.answers[c.asked]
	c.asked++
	return model.ConfirmationDecision{Approved: approved}, nil
}

func newDispatcher(t *testing.T, provider confirm.DecisionProvider, alerts *alert.Dispatcher) *Dispatcher {
	t.Helper()
	rules, err := policy.Load([]byte(testConstitution), "test")
	if err != nil {
		t.Fatal(err)
	}
	engine := policy.NewEngine(rules, nil)
	gate := confirm.NewGate(provider, zerolog.Nop())
	return New(engine, gate, audit.NewTrail(), Options{RunID: 1, Alerts: alerts, Logger: zerolog.Nop()})
}

func refundArgs(amount float64) model.Args {
	return model.Args{{Name: "customer_id", Value: "C-1"}, {Name: "amount", Value: amount}}
}

func TestAllowReleasesWithoutConfirmation(t *testing.T) {
	provider := &canned{}
	d := newDispatcher(t, provider, nil)

	c := d.BeforeToolCall(context.Background(), "refund", refundArgs(50))
	if !c.Allowed || c.Verdict.Effect != model.Allow {
		t.Fatalf("expected allow, got %+v", c)
	}
	if provider.asked != 0 {
		t.Error("allow must not ask for confirmation")
	}
	d.AfterToolCall(context.Background(), "refund", refundArgs(50), "refunded")

	entries := d.Trail().Entries()
	if len(entries) != 1 || !entries[0].Executed || entries[0].Decision != nil {
		t.Fatalf("unexpected trail: %+v", entries)
	}
}

func TestApprovedConfirmationExecutes(t *testing.T) {
	d := newDispatcher(t, &canned{answers: []bool{true}}, nil)

	c := d.BeforeToolCall(context.Background(), "refund", refundArgs(5000))
	if !c.Allowed {
		t.Fatalf("approved confirmation must release: %+v", c)
	}
	d.AfterToolCall(context.Background(), "refund", refundArgs(5000), "refunded")

	e := d.Trail().Entries()[0]
	if e.Verdict.Effect != model.Confirm || e.Decision == nil || !e.Decision.Approved || !e.Executed {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRejectedConfirmationNeverExecutes(t *testing.T) {
	d := newDispatcher(t, &canned{answers: []bool{false}}, nil)

	c := d.BeforeToolCall(context.Background(), "refund", refundArgs(5000))
	if c.Allowed {
		t.Fatal("rejected confirmation must not release")
	}
	if c.Explain() == "" {
		t.Error("blocked clearance must explain itself")
	}
	// A misbehaving runtime reporting completion anyway is ignored.
	d.AfterToolCall(context.Background(), "refund", refundArgs(5000), "refunded")

	e := d.Trail().Entries()[0]
	if e.Executed || e.Released {
		t.Fatalf("rejected call marked executed: %+v", e)
	}
	if res := audit.CheckInvariants(d.Trail().Entries()); !res.Valid {
		t.Fatal(res.Error)
	}
}

func TestDenyRecordedAndAlerted(t *testing.T) {
	var mu sync.Mutex
	var events []alert.AlertEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev alert.AlertEvent
		json.NewDecoder(r.Body).Decode(&ev)
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	alerts := alert.NewDispatcher([]alert.AlertConfig{
		{URL: srv.URL, Events: []string{alert.EventDeny, alert.EventConfirmRejected}},
	}, zerolog.Nop())

	provider := &canned{}
	d := newDispatcher(t, provider, alerts)
	args := model.Args{{Name: "customer_id", Value: "C-1"}, {Name: "amount", Value: 20.0}, {Name: "note", Value: "moving to competitor"}}

	c := d.BeforeToolCall(context.Background(), "refund", args)
	alerts.Wait()

	if c.Allowed || c.Verdict.Effect != model.Deny {
		t.Fatalf("expected deny, got %+v", c)
	}
	if c.Explain() != "Blocked by policy: Refunds citing competitors go to retention." {
		t.Errorf("unexpected explanation: %q", c.Explain())
	}
	if provider.asked != 0 {
		t.Error("deny must not ask for confirmation")
	}
	if len(events) != 1 || events[0].Event != alert.EventDeny || events[0].Rule != "refund-competitor" {
		t.Fatalf("unexpected alerts: %+v", events)
	}
}

func TestUnmatchedActionRequiresConfirmation(t *testing.T) {
	provider := &canned{answers: []bool{true}}
	d := newDispatcher(t, provider, nil)

	c := d.BeforeToolCall(context.Background(), "send_email", model.Args{{Name: "to", Value: "a@b.c"}})
	if provider.asked != 1 {
		t.Fatalf("expected a confirmation prompt, got %d", provider.asked)
	}
	if c.Verdict.Reason != policy.NoExplicitPolicy {
		t.Errorf("unexpected reason %q", c.Verdict.Reason)
	}
}

func TestIdenticalCallsAskEachTime(t *testing.T) {
	provider := &canned{answers: []bool{true, false}}
	d := newDispatcher(t, provider, nil)

	first := d.BeforeToolCall(context.Background(), "refund", refundArgs(5000))
	second := d.BeforeToolCall(context.Background(), "refund", refundArgs(5000))
	if provider.asked != 2 {
		t.Fatalf("expected 2 prompts, got %d", provider.asked)
	}
	if !first.Allowed || second.Allowed {
		t.Errorf("unexpected clearances: %v %v", first.Allowed, second.Allowed)
	}
	if first.RequestID == second.RequestID {
		t.Error("request ids must be unique")
	}
}

func TestTrailOrderMatchesProposalOrder(t *testing.T) {
	d := newDispatcher(t, &canned{answers: []bool{false, true}}, nil)
	ctx := context.Background()

	d.BeforeToolCall(ctx, "refund", refundArgs(10))
	d.BeforeToolCall(ctx, "refund", refundArgs(2000))
	d.BeforeToolCall(ctx, "send_email", model.Args{{Name: "to", Value: "a@b.c"}})
	d.BeforeToolCall(ctx, "refund", refundArgs(20))

	var got []string
	for _, e := range d.Trail().Entries() {
		got = append(got, e.Request.Describe())
	}
	want := []string{
		`refund(customer_id="C-1", amount=10)`,
		`refund(customer_id="C-1", amount=2000)`,
		`send_email(to="a@b.c")`,
		`refund(customer_id="C-1", amount=20)`,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRejectedProposalIsRecordedAsDeny(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	alerts := alert.NewDispatcher([]alert.AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{alert.EventDeny}},
	}, zerolog.Nop())

	d := newDispatcher(t, &canned{}, alerts)
	ctx := context.Background()
	c := d.RejectToolCall(ctx, "wire_transfer", nil, "unknown tool")
	d.BeforeToolCall(ctx, "refund", refundArgs(10))
	alerts.Wait()

	if c.Allowed || c.Verdict.Effect != model.Deny || c.Verdict.Reason != "unknown tool" {
		t.Errorf("clearance = %+v", c)
	}
	entries := d.Trail().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	e := entries[0]
	if e.Seq != 1 || e.Request.Action != "wire_transfer" || e.Verdict.Effect != model.Deny || !e.Verdict.Runtime || e.Released || e.Request.Args == nil {
		t.Errorf("rejected entry = %+v", e)
	}
	if res := audit.CheckInvariants(entries); !res.Valid {
		t.Errorf("invariants: %s", res.Error)
	}
	if hits != 0 {
		t.Errorf("rejected proposal escalated %d times", hits)
	}
}
