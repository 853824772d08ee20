package governor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/agent"
	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/judge"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
	"github.com/ppiankov/intentgov/internal/tools"
)

const largeRefundRule = `
rules:
  - name: large-refunds
    match: {action: refund, args: {amount: ">1000"}}
    effect: confirm
    reason: Refunds over $1000 need a human.
  - name: no-chargebacks
    match: {action: process_chargeback}
    effect: deny
    reason: Chargebacks are handled by finance.
`

var testCriteria = []model.Criterion{
	{ID: "tone", Text: "The reply is polite."},
	{ID: "honesty", Text: "The reply does not claim actions that were not performed."},
}

// judgeBackend answers every criterion, recording prompts.
type judgeBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   func(user string) (string, error)
}

func (b *judgeBackend) Complete(ctx context.Context, system, user string) (string, error) {
	b.mu.Lock()
	b.prompts = append(b.prompts, user)
	b.mu.Unlock()
	if b.reply == nil {
		return `{"satisfied": true, "rationale": "ok"}`, nil
	}
	return b.reply(user)
}

func (b *judgeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

// call is one scripted tool call for fakeRuntime.
type call struct {
	action string
	args   model.Args
}

// fakeRuntime proposes calls in order, executes released ones, then answers.
func fakeRuntime(calls []call, answer string, failAfter int) agent.Runtime {
	reg := tools.Default()
	return agent.RuntimeFunc(func(ctx context.Context, intent string, hooks agent.Hooks) (string, error) {
		for i, c := range calls {
			if failAfter >= 0 && i == failAfter {
				return "", errors.New("model backend crashed")
			}
			if !hooks.BeforeToolCall(ctx, c.action, c.args).Allowed {
				continue
			}
			tool, _ := reg.Get(c.action)
			res, err := tool.Run(ctx, c.args)
			if err != nil {
				res = err.Error()
			}
			hooks.AfterToolCall(ctx, c.action, c.args, res)
		}
		if failAfter >= len(calls) {
			return "", errors.New("model backend crashed")
		}
		return answer, nil
	})
}

func approveAll(approved bool) confirm.DecisionProvider {
	return confirm.ProviderFunc(func(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
		return model.ConfirmationDecision{Approved: approved}, nil
	})
}

func newGovernor(t *testing.T, rt agent.Runtime, provider confirm.DecisionProvider, backend judge.Backend, alerts *alert.Dispatcher) *Governor {
	t.Helper()
	rules, err := policy.Load([]byte(largeRefundRule), "test")
	if err != nil {
		t.Fatal(err)
	}
	snap := &Snapshot{Rules: rules, ConstitutionHash: policy.HashBytes([]byte(largeRefundRule)), Criteria: testCriteria}
	return New(snap, rt,
		confirm.NewGate(provider, zerolog.Nop()),
		judge.New(backend, judge.Config{}, zerolog.Nop()),
		Options{SessionID: "s1", Alerts: alerts, Logger: zerolog.Nop()})
}

var refund5000 = call{"refund", model.Args{{Name: "customer_id", Value: "C-1"}, {Name: "amount", Value: 5000.0}}}

func TestApprovedLargeRefundExecutes(t *testing.T) {
	backend := &judgeBackend{}
	g := newGovernor(t, fakeRuntime([]call{refund5000}, "Refund issued.", -1), approveAll(true), backend, nil)

	rep, err := g.Govern(context.Background(), "Refund $5000 to customer C-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.ToolCalls) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(rep.ToolCalls))
	}
	e := rep.ToolCalls[0]
	if e.Verdict.Effect != model.Confirm || e.Decision == nil || !e.Decision.Approved || !e.Executed {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !strings.Contains(e.Result, "Refund of $5000.00") {
		t.Errorf("result = %q", e.Result)
	}
	if rep.State != model.StateCompleted || rep.Aborted || !rep.OverallPass {
		t.Errorf("report state=%s aborted=%v pass=%v", rep.State, rep.Aborted, rep.OverallPass)
	}
	if v := audit.Verify(rep.ToolCalls); !v.Valid {
		t.Errorf("trail invalid: %s", v.Error)
	}
}

func TestRejectedLargeRefundNotPerformed(t *testing.T) {
	backend := &judgeBackend{}
	g := newGovernor(t, fakeRuntime([]call{refund5000}, "The refund was not approved.", -1), approveAll(false), backend, nil)

	rep, err := g.Govern(context.Background(), "Refund $5000 to customer C-1")
	if err != nil {
		t.Fatal(err)
	}
	e := rep.ToolCalls[0]
	if e.Executed || e.Released || e.Decision == nil || e.Decision.Approved {
		t.Errorf("rejected refund executed: %+v", e)
	}
	if np := rep.NotPerformed(); len(np) != 1 || np[0].Request.Action != "refund" {
		t.Errorf("not performed = %+v", np)
	}
	if !rep.OverallPass {
		t.Error("overall pass should follow the criteria, which all passed")
	}
	for _, p := range backend.prompts {
		if !strings.Contains(p, "not performed") {
			t.Errorf("judge not told the refund was not performed:\n%s", p)
		}
	}
}

func TestUnmatchedActionRequiresConfirmation(t *testing.T) {
	email := call{"send_email", model.Args{
		{Name: "to", Value: "c1@example.com"}, {Name: "subject", Value: "Hi"}, {Name: "body", Value: "Hello"},
	}}
	var asked []string
	provider := confirm.ProviderFunc(func(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
		asked = append(asked, reason)
		return model.ConfirmationDecision{Approved: true}, nil
	})
	g := newGovernor(t, fakeRuntime([]call{email}, "Sent.", -1), provider, &judgeBackend{}, nil)

	rep, err := g.Govern(context.Background(), "email the customer")
	if err != nil {
		t.Fatal(err)
	}
	want := model.Verdict{Effect: model.Confirm, Reason: policy.NoExplicitPolicy}
	if diff := cmp.Diff(want, rep.ToolCalls[0].Verdict); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
	if len(asked) != 1 || asked[0] != policy.NoExplicitPolicy {
		t.Errorf("operator asked with %v", asked)
	}
}

func TestAgentFailureAbortsRun(t *testing.T) {
	var mu sync.Mutex
	var events []alert.AlertEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev alert.AlertEvent
		_ = json.NewDecoder(r.Body).Decode(&ev)
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	defer srv.Close()
	alerts := alert.NewDispatcher([]alert.AlertConfig{{URL: srv.URL, Events: []string{alert.EventRunAborted}}}, zerolog.Nop())

	small := call{"refund", model.Args{{Name: "customer_id", Value: "C-1"}, {Name: "amount", Value: 50.0}}}
	backend := &judgeBackend{}
	g := newGovernor(t, fakeRuntime([]call{small, refund5000}, "", 1), approveAll(true), backend, alerts)

	rep, err := g.Govern(context.Background(), "Refund twice")
	if err != nil {
		t.Fatal(err)
	}
	alerts.Wait()

	if !rep.Aborted || rep.OverallPass || rep.State != model.StateCompleted {
		t.Fatalf("aborted=%v pass=%v state=%s", rep.Aborted, rep.OverallPass, rep.State)
	}
	if len(rep.ToolCalls) != 1 || rep.ToolCalls[0].Request.Action != "refund" {
		t.Errorf("log should hold only the call before the failure: %+v", rep.ToolCalls)
	}
	if len(rep.Evaluations) != 0 || backend.calls() != 0 {
		t.Errorf("aborted run was evaluated")
	}
	if !strings.Contains(rep.Error, "model backend crashed") {
		t.Errorf("error = %q", rep.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Event != alert.EventRunAborted || events[0].RunID != rep.RunID {
		t.Errorf("alerts = %+v", events)
	}
}

func TestDenyIsNeverExecuted(t *testing.T) {
	chargeback := call{"process_chargeback", model.Args{{Name: "customer_id", Value: "C-1"}, {Name: "amount", Value: 20.0}}}
	// A runtime that ignores the clearance and reports completion anyway.
	rogue := agent.RuntimeFunc(func(ctx context.Context, intent string, hooks agent.Hooks) (string, error) {
		hooks.BeforeToolCall(ctx, chargeback.action, chargeback.args)
		hooks.AfterToolCall(ctx, chargeback.action, chargeback.args, "done")
		return "Chargeback done.", nil
	})
	g := newGovernor(t, rogue, approveAll(true), &judgeBackend{}, nil)

	rep, err := g.Govern(context.Background(), "chargeback C-1")
	if err != nil {
		t.Fatal(err)
	}
	e := rep.ToolCalls[0]
	if e.Verdict.Effect != model.Deny || e.Executed {
		t.Errorf("deny executed: %+v", e)
	}
	if v := audit.CheckInvariants(rep.ToolCalls); !v.Valid {
		t.Errorf("invariants broken: %s", v.Error)
	}
}

func TestUnresolvedCriterionFailsRun(t *testing.T) {
	backend := &judgeBackend{reply: func(user string) (string, error) {
		if strings.Contains(user, "Criterion (honesty)") {
			return "", errors.New("judge unavailable")
		}
		return `{"satisfied": true, "rationale": "ok"}`, nil
	}}
	g := newGovernor(t, fakeRuntime(nil, "Hello.", -1), approveAll(true), backend, nil)

	rep, err := g.Govern(context.Background(), "say hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Evaluations) != 1 || len(rep.Unresolved) != 1 || rep.OverallPass {
		t.Fatalf("evaluations=%d unresolved=%d pass=%v", len(rep.Evaluations), len(rep.Unresolved), rep.OverallPass)
	}
	if rep.Unresolved[0].CriterionID != "honesty" {
		t.Errorf("unresolved = %+v", rep.Unresolved)
	}
}

func TestRunIDsAndSnapshotSwap(t *testing.T) {
	g := newGovernor(t, fakeRuntime([]call{refund5000}, "ok", -1), approveAll(true), &judgeBackend{}, nil)

	first, _ := g.Govern(context.Background(), "one")
	g.Swap(&Snapshot{ConstitutionHash: "sha256:new", Criteria: testCriteria})
	second, _ := g.Govern(context.Background(), "two")

	if first.RunID != 1 || second.RunID != 2 {
		t.Errorf("run ids = %d, %d", first.RunID, second.RunID)
	}
	if second.ConstitutionHash != "sha256:new" {
		t.Errorf("swap not applied: %s", second.ConstitutionHash)
	}
	if second.ToolCalls[0].Verdict.Reason != policy.NoExplicitPolicy {
		t.Errorf("empty rule set should default to confirm, got %v", second.ToolCalls[0].Verdict)
	}
}

func TestCancelledRunIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rt := agent.RuntimeFunc(func(ctx context.Context, intent string, hooks agent.Hooks) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	g := newGovernor(t, rt, approveAll(true), &judgeBackend{}, nil)

	rep, err := g.Govern(ctx, "anything")
	if !errors.Is(err, context.Canceled) || rep != nil {
		t.Fatalf("rep=%v err=%v", rep, err)
	}
}
