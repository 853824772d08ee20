package hook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
	"github.com/ppiankov/intentgov/internal/redact"
)

// Options carry run metadata and optional collaborators. AlertContext bounds
// escalation delivery when calls arrive on contexts that end with the call
// (MCP requests); nil uses the call's context.
type Options struct {
	RunID            uint64
	SessionID        string
	Intent           string
	ConstitutionHash string
	Alerts           *alert.Dispatcher
	AlertContext     context.Context
	SensitiveKeys    []string
	Logger           zerolog.Logger
}

// Dispatcher is the single interception point between an agent runtime and
// tool execution. Every proposed call is evaluated, possibly confirmed, and
// appended to the trail before BeforeToolCall returns.
type Dispatcher struct {
	engine *policy.Engine
	gate   *confirm.Gate
	trail  *audit.Trail
	opts   Options
	log    zerolog.Logger

	newID func() string
	now   func() time.Time
}

// New creates a Dispatcher for one run.
func New(engine *policy.Engine, gate *confirm.Gate, trail *audit.Trail, opts Options) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		gate:   gate,
		trail:  trail,
		opts:   opts,
		log: opts.Logger.With().
			Str("component", "hook").
			Uint64("run_id", opts.RunID).
			Logger(),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Trail returns the run's tool-call trail.
func (d *Dispatcher) Trail() *audit.Trail {
	return d.trail
}

// BeforeToolCall decides whether the agent may execute action(args).
// Allow releases immediately, Deny never releases, and RequireConfirmation
// releases only on an approving decision.
func (d *Dispatcher) BeforeToolCall(ctx context.Context, action string, args model.Args) model.Clearance {
	req := model.ToolCallRequest{
		ID:        d.newID(),
		RunID:     d.opts.RunID,
		Action:    action,
		Args:      args,
		Origin:    model.OriginAgent,
		Timestamp: d.now().UTC(),
	}
	verdict := d.engine.Evaluate(req)

	var decision *model.ConfirmationDecision
	released := false
	switch verdict.Effect {
	case model.Allow:
		released = true
	case model.Deny:
		released = false
	default:
		dec := d.gate.Confirm(ctx, req, verdict.Reason)
		decision = &dec
		released = dec.Approved
	}

	seq := d.trail.Append(req, verdict, decision, released)

	d.log.Info().
		Int("seq", seq).
		Str("request_id", req.ID).
		Str("action", action).
		Str("args", redact.Args(args, d.opts.SensitiveKeys).String()).
		Str("verdict", string(verdict.Effect)).
		Str("rule", verdict.Rule).
		Bool("released", released).
		Msg("tool call intercepted")

	switch {
	case verdict.Effect == model.Deny:
		d.escalate(ctx, alert.EventDeny, req, verdict)
	case decision != nil && !decision.Approved:
		d.escalate(ctx, alert.EventConfirmRejected, req, verdict)
	}

	return model.Clearance{
		Allowed:   released,
		RequestID: req.ID,
		Verdict:   verdict,
		Decision:  decision,
	}
}

// RejectToolCall records a proposal the runtime could not execute as a denied
// entry. No policy is consulted and nothing is escalated.
func (d *Dispatcher) RejectToolCall(ctx context.Context, action string, args model.Args, reason string) model.Clearance {
	if args == nil {
		args = model.Args{}
	}
	req := model.ToolCallRequest{
		ID:        d.newID(),
		RunID:     d.opts.RunID,
		Action:    action,
		Args:      args,
		Origin:    model.OriginAgent,
		Timestamp: d.now().UTC(),
	}
	verdict := model.Verdict{Effect: model.Deny, Reason: reason, Runtime: true}
	seq := d.trail.Append(req, verdict, nil, false)

	d.log.Warn().
		Int("seq", seq).
		Str("request_id", req.ID).
		Str("action", action).
		Str("reason", reason).
		Msg("tool call rejected before policy evaluation")

	return model.Clearance{RequestID: req.ID, Verdict: verdict}
}

// AfterToolCall marks the matching released call as executed. A completion
// for a call that was never released is logged and ignored.
func (d *Dispatcher) AfterToolCall(ctx context.Context, action string, args model.Args, result string) {
	seq := d.trail.MarkExecuted(action, args, result)
	if seq == 0 {
		d.log.Warn().
			Str("action", action).
			Msg("completion reported for a call that was not released, ignoring")
		return
	}
	d.log.Debug().
		Int("seq", seq).
		Str("action", action).
		Str("result", redact.Text(result)).
		Msg("tool call executed")
}

func (d *Dispatcher) escalate(ctx context.Context, event string, req model.ToolCallRequest, v model.Verdict) {
	if d.opts.AlertContext != nil {
		ctx = d.opts.AlertContext
	}
	d.opts.Alerts.Dispatch(ctx, alert.AlertEvent{
		Timestamp:        d.now().UTC().Format(time.RFC3339),
		SessionID:        d.opts.SessionID,
		RunID:            d.opts.RunID,
		Event:            event,
		Intent:           d.opts.Intent,
		Action:           req.Action,
		Args:             redact.Args(req.Args, d.opts.SensitiveKeys).String(),
		Reason:           v.Reason,
		Rule:             v.Rule,
		ConstitutionHash: d.opts.ConstitutionHash,
	})
}
