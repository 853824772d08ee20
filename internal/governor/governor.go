// Package governor runs one intent at a time through the agent, the hook
// dispatcher, and the judge, and assembles the run's Report.
package governor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/agent"
	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/hook"
	"github.com/ppiankov/intentgov/internal/judge"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
)

// Options carry process-wide settings shared by every run.
type Options struct {
	SessionID     string
	Session       map[string]any
	Alerts        *alert.Dispatcher
	SensitiveKeys []string
	Logger        zerolog.Logger
}

// Governor owns the run lifecycle. Runs are sequential; Govern must not be
// called concurrently.
type Governor struct {
	snap    atomic.Pointer[Snapshot]
	runtime agent.Runtime
	gate    *confirm.Gate
	judge   *judge.Evaluator
	opts    Options
	log     zerolog.Logger

	runSeq atomic.Uint64
	now    func() time.Time
}

// New creates a Governor starting from snap.
func New(snap *Snapshot, runtime agent.Runtime, gate *confirm.Gate, j *judge.Evaluator, opts Options) *Governor {
	g := &Governor{
		runtime: runtime,
		gate:    gate,
		judge:   j,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "governor").Logger(),
		now:     time.Now,
	}
	g.snap.Store(snap)
	return g
}

// Snapshot returns the rules and criteria the next run will use.
func (g *Governor) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Swap replaces the snapshot. A run in progress keeps the one it started with.
func (g *Governor) Swap(s *Snapshot) {
	g.snap.Store(s)
}

// run tracks one intent's lifecycle.
type run struct {
	report *model.Report
	log    zerolog.Logger
}

func (r *run) advance(next model.RunState) {
	if !r.report.State.CanTransition(next) {
		r.log.Error().
			Str("from", string(r.report.State)).
			Str("to", string(next)).
			Msg("illegal run state transition")
		return
	}
	r.log.Debug().Str("state", string(next)).Msg("run state")
	r.report.State = next
}

// Govern runs one intent to completion. Agent failures abort the run and
// still return a Report. The only error is ctx cancellation, in which case
// the partial run is discarded.
func (g *Governor) Govern(ctx context.Context, text string) (*model.Report, error) {
	snap := g.snap.Load()
	intent := model.Intent{RunID: g.runSeq.Add(1), Text: text, CreatedAt: g.now().UTC()}

	r := &run{
		report: &model.Report{
			RunID:            intent.RunID,
			SessionID:        g.opts.SessionID,
			Intent:           intent.Text,
			ConstitutionHash: snap.ConstitutionHash,
			State:            model.StateCreated,
			ToolCalls:        []model.LogEntry{},
			Evaluations:      []model.Evaluation{},
			StartedAt:        intent.CreatedAt,
		},
		log: g.log.With().Uint64("run_id", intent.RunID).Logger(),
	}
	r.log.Info().Str("intent", text).Int("rules", len(snap.Rules)).Msg("run started")

	trail := audit.NewTrail()
	dispatcher := hook.New(policy.NewEngine(snap.Rules, g.opts.Session), g.gate, trail, hook.Options{
		RunID:            intent.RunID,
		SessionID:        g.opts.SessionID,
		Intent:           intent.Text,
		ConstitutionHash: snap.ConstitutionHash,
		Alerts:           g.opts.Alerts,
		SensitiveKeys:    g.opts.SensitiveKeys,
		Logger:           g.opts.Logger,
	})

	r.advance(model.StateAgentRunning)
	answer, err := g.runtime.Run(ctx, intent.Text, dispatcher)
	if ctx.Err() != nil {
		r.log.Warn().Msg("run interrupted, report discarded")
		return nil, ctx.Err()
	}
	r.report.ToolCalls = g.seal(r, trail)

	if err != nil {
		return g.abort(ctx, r, &model.AgentError{RunID: intent.RunID, Err: err}), nil
	}
	r.report.FinalAnswer = answer

	r.advance(model.StateEvaluating)
	res := g.judge.Evaluate(ctx, judge.Input{
		Intent:      intent.Text,
		FinalAnswer: answer,
		ToolCalls:   r.report.ToolCalls,
	}, snap.Criteria)
	if ctx.Err() != nil {
		r.log.Warn().Msg("run interrupted during evaluation, report discarded")
		return nil, ctx.Err()
	}

	if res.Evaluations != nil {
		r.report.Evaluations = res.Evaluations
	}
	for _, u := range res.Unresolved {
		r.report.Unresolved = append(r.report.Unresolved, model.Unresolved{
			CriterionID: u.CriterionID,
			Error:       u.Err.Error(),
		})
	}
	r.report.OverallPass = r.report.ComputeOverallPass()
	r.advance(model.StateCompleted)
	r.report.FinishedAt = g.now().UTC()

	r.log.Info().
		Bool("overall_pass", r.report.OverallPass).
		Int("tool_calls", len(r.report.ToolCalls)).
		Int("unresolved", len(r.report.Unresolved)).
		Msg("run completed")

	if !r.report.OverallPass {
		g.escalate(ctx, alert.EventEvaluationFailed, r.report, failingCriteria(r.report), "")
	}
	return r.report, nil
}

// abort finishes a run whose agent failed. Evaluation never happens.
func (g *Governor) abort(ctx context.Context, r *run, agentErr *model.AgentError) *model.Report {
	r.report.Aborted = true
	r.report.Error = agentErr.Error()
	r.report.OverallPass = false
	r.advance(model.StateCompleted)
	r.report.FinishedAt = g.now().UTC()

	r.log.Error().Err(agentErr.Err).Int("tool_calls", len(r.report.ToolCalls)).Msg("run aborted")
	g.escalate(ctx, alert.EventRunAborted, r.report, nil, r.report.Error)
	return r.report
}

func (g *Governor) seal(r *run, trail *audit.Trail) []model.LogEntry {
	entries, err := trail.Seal()
	if err != nil {
		r.log.Error().Err(err).Msg("seal tool-call trail")
		entries = trail.Entries()
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	return entries
}

func (g *Governor) escalate(ctx context.Context, event string, rep *model.Report, criteria []string, reason string) {
	g.opts.Alerts.Dispatch(ctx, alert.AlertEvent{
		Timestamp:        g.now().UTC().Format(time.RFC3339),
		SessionID:        rep.SessionID,
		RunID:            rep.RunID,
		Event:            event,
		Intent:           rep.Intent,
		Reason:           reason,
		Criteria:         criteria,
		ConstitutionHash: rep.ConstitutionHash,
	})
}

// failingCriteria lists criteria judged unsatisfied and those left unresolved.
func failingCriteria(rep *model.Report) []string {
	var ids []string
	for _, e := range rep.Evaluations {
		if !e.Satisfied {
			ids = append(ids, e.CriterionID)
		}
	}
	for _, u := range rep.Unresolved {
		ids = append(ids, u.CriterionID)
	}
	return ids
}

