package policy

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/rs/zerolog/log"

	"github.com/ppiankov/intentgov/internal/model"
)

// NoExplicitPolicy is the reason attached to the fail-safe default verdict.
const NoExplicitPolicy = "no explicit policy"

// Engine evaluates tool calls against an immutable rule snapshot.
type Engine struct {
	rules   []Rule
	session map[string]any
}

// NewEngine creates an Engine. session feeds rule "when" guards and may be nil.
func NewEngine(rules []Rule, session map[string]any) *Engine {
	if session == nil {
		session = map[string]any{}
	}
	return &Engine{rules: rules, session: session}
}

// Rules returns the engine's rule snapshot.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate returns the verdict for one tool call.
//
// Rules are scanned in document order and the first rule whose action pattern,
// argument constraints, and guard all hold decides. With no match the verdict
// is RequireConfirmation: governance never fails open.
func (e *Engine) Evaluate(req model.ToolCallRequest) model.Verdict {
	for _, rule := range e.rules {
		if !matchAction(rule.Match.Action, req.Action) {
			continue
		}
		if !matchArgs(rule.Match.Args, req.Args) {
			continue
		}
		if !e.guard(rule, req) {
			continue
		}
		return model.Verdict{
			Effect: rule.Effect,
			Reason: rule.Reason,
			Rule:   rule.Name,
		}
	}

	return model.Verdict{
		Effect: model.Confirm,
		Reason: NoExplicitPolicy,
	}
}

// Evaluate is a convenience for evaluating without session context.
func Evaluate(req model.ToolCallRequest, rules []Rule) model.Verdict {
	return NewEngine(rules, nil).Evaluate(req)
}

func matchArgs(constraints []Constraint, args model.Args) bool {
	for _, c := range constraints {
		if !c.Match(args) {
			return false
		}
	}
	return true
}

// guard runs the rule's when expression. Evaluation errors count as non-match.
func (e *Engine) guard(rule Rule, req model.ToolCallRequest) bool {
	if rule.when == nil {
		return true
	}
	out, err := expr.Run(rule.when, map[string]any{
		"session": e.session,
		"action":  req.Action,
		"args":    req.Args.Map(),
	})
	if err != nil {
		log.Debug().Err(err).Str("rule", rule.Name).Msg("rule guard failed, treating as non-match")
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// matchAction checks a tool name against a rule pattern.
// "*" matches all, *x* contains, *x suffix, x* prefix, exact otherwise.
// Matching is case-insensitive.
func matchAction(pattern, action string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	lowerAction := strings.ToLower(action)
	lowerPattern := strings.ToLower(pattern)

	if len(lowerPattern) > 1 && strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*") {
		return strings.Contains(lowerAction, lowerPattern[1:len(lowerPattern)-1])
	}
	if strings.HasPrefix(lowerPattern, "*") {
		return strings.HasSuffix(lowerAction, lowerPattern[1:])
	}
	if strings.HasSuffix(lowerPattern, "*") {
		return strings.HasPrefix(lowerAction, lowerPattern[:len(lowerPattern)-1])
	}
	return lowerAction == lowerPattern
}
