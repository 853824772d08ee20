package policy

import (
	"testing"

	"github.com/ppiankov/intentgov/internal/model"
)

func request(action string, args ...model.Arg) model.ToolCallRequest {
	return model.ToolCallRequest{ID: "req-test", Action: action, Args: model.Args(args), Origin: model.OriginAgent}
}

func arg(name string, v any) model.Arg {
	return model.Arg{Name: name, Value: v}
}

func mustLoad(t *testing.T, doc string) []Rule {
	t.Helper()
	rules, err := Load([]byte(doc), "test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return rules
}

func TestLargeRefundRequiresConfirmation(t *testing.T) {
	rules := mustLoad(t, `
rules:
  - match: {action: refund, args: {amount: ">1000"}}
    effect: confirm
    reason: large refund
`)
	v := Evaluate(request("refund", arg("customer_id", "C-1"), arg("amount", 5000.0)), rules)
	if v.Effect != model.Confirm {
		t.Errorf("expected confirm, got %s", v.Effect)
	}
	if v.Reason != "large refund" {
		t.Errorf("expected verbatim reason, got %q", v.Reason)
	}
}

func TestNoMatchDefaultsToConfirmation(t *testing.T) {
	rules := mustLoad(t, `
rules:
  - match: {action: refund}
    effect: allow
`)
	v := Evaluate(request("send_email", arg("to", "a@b.c")), rules)
	if v.Effect != model.Confirm {
		t.Fatalf("unmatched action must require confirmation, got %s", v.Effect)
	}
	if v.Reason != NoExplicitPolicy {
		t.Errorf("expected reason %q, got %q", NoExplicitPolicy, v.Reason)
	}
	if v.Rule != "" {
		t.Errorf("default verdict has no rule, got %q", v.Rule)
	}
}

func TestFirstMatchWinsAndOrderMatters(t *testing.T) {
	allowFirst := `
rules:
  - name: a
    match: {action: refund}
    effect: allow
  - name: b
    match: {action: refund}
    effect: deny
`
	denyFirst := `
rules:
  - name: b
    match: {action: refund}
    effect: deny
  - name: a
    match: {action: refund}
    effect: allow
`
	req := request("refund", arg("amount", 10))

	v1 := Evaluate(req, mustLoad(t, allowFirst))
	v2 := Evaluate(req, mustLoad(t, denyFirst))

	if v1.Effect != model.Allow || v1.Rule != "a" {
		t.Errorf("expected rule a (allow), got %+v", v1)
	}
	if v2.Effect != model.Deny || v2.Rule != "b" {
		t.Errorf("expected rule b (deny), got %+v", v2)
	}
}

func TestMissingArgumentIsNonMatch(t *testing.T) {
	rules := mustLoad(t, `
rules:
  - match: {action: refund, args: {amount: ">1000"}}
    effect: deny
  - match: {action: refund}
    effect: allow
`)
	v := Evaluate(request("refund", arg("customer_id", "C-1")), rules)
	if v.Effect != model.Allow {
		t.Errorf("constraint on absent arg must not match, got %s", v.Effect)
	}
}

func TestThresholdCoercesFormattedStrings(t *testing.T) {
	rules := mustLoad(t, `
rules:
  - match: {action: refund, args: {amount: {gte: 100}}}
    effect: deny
`)
	for _, amount := range []any{"$5,000", "100", 100, 250.5} {
		if v := Evaluate(request("refund", arg("amount", amount)), rules); v.Effect != model.Deny {
			t.Errorf("amount %v: expected deny, got %s", amount, v.Effect)
		}
	}
	if v := Evaluate(request("refund", arg("amount", "lots")), rules); v.Effect != model.Confirm {
		t.Errorf("non-numeric amount must not match threshold, got %s", v.Effect)
	}
}

func TestContainsAndEquals(t *testing.T) {
	rules := mustLoad(t, `
rules:
  - match: {action: send_email, args: {to: {contains: "@competitor.com"}}}
    effect: deny
    reason: no mail to competitors
  - match: {action: send_email, args: {priority: 1}}
    effect: confirm
  - match: {action: send_email}
    effect: allow
`)
	if v := Evaluate(request("send_email", arg("to", "ceo@Competitor.com")), rules); v.Effect != model.Deny {
		t.Errorf("expected deny for competitor domain, got %s", v.Effect)
	}
	if v := Evaluate(request("send_email", arg("to", "a@acme.com"), arg("priority", 1.0)), rules); v.Effect != model.Confirm {
		t.Errorf("expected numeric equality 1 == 1.0, got %s", v.Effect)
	}
	if v := Evaluate(request("send_email", arg("to", "a@acme.com")), rules); v.Effect != model.Allow {
		t.Errorf("expected allow, got %s", v.Effect)
	}
}

func TestActionPatterns(t *testing.T) {
	cases := []struct {
		pattern, action string
		want            bool
	}{
		{"*", "anything", true},
		{"refund", "Refund", true},
		{"refund", "refund_partial", false},
		{"refund*", "refund_partial", true},
		{"*_subscription", "cancel_subscription", true},
		{"*charge*", "process_chargeback", true},
		{"*charge*", "send_email", false},
	}
	for _, c := range cases {
		if got := matchAction(c.pattern, c.action); got != c.want {
			t.Errorf("matchAction(%q, %q) = %v, want %v", c.pattern, c.action, got, c.want)
		}
	}
}

func TestWhenGuardUsesSession(t *testing.T) {
	rules := mustLoad(t, DefaultConstitutionYAML())
	req := request("refund", arg("customer_id", "C-1"), arg("amount", 500))

	standard := NewEngine(rules, map[string]any{"customer_tier": "standard"})
	if v := standard.Evaluate(req); v.Effect != model.Deny {
		t.Errorf("standard tier $500 refund: expected deny, got %s", v.Effect)
	}

	enterprise := NewEngine(rules, map[string]any{"customer_tier": "enterprise"})
	if v := enterprise.Evaluate(req); v.Effect != model.Allow || v.Rule != "refund-small" {
		t.Errorf("enterprise tier $500 refund: expected allow by refund-small, got %+v", v)
	}
}

func TestWhenGuardRuntimeErrorIsNonMatch(t *testing.T) {
	rules := mustLoad(t, DefaultConstitutionYAML())
	// No tenure in session: the guard errors and the next rule applies.
	v := NewEngine(rules, map[string]any{}).Evaluate(request("cancel_subscription", arg("customer_id", "C-9")))
	if v.Effect != model.Allow || v.Rule != "cancel-standard" {
		t.Errorf("expected cancel-standard allow, got %+v", v)
	}

	long := NewEngine(rules, map[string]any{"customer_tenure_days": 800})
	if v := long.Evaluate(request("cancel_subscription", arg("customer_id", "C-9"))); v.Effect != model.Confirm {
		t.Errorf("long tenure cancellation: expected confirm, got %s", v.Effect)
	}
}
