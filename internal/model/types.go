package model

import (
	"fmt"
	"strings"
	"time"
)

// Effect is the outcome class a rule assigns to a matching tool call.
type Effect string

const (
	Allow   Effect = "allow"
	Deny    Effect = "deny"
	Confirm Effect = "confirm"
)

// ParseEffect maps a rule document effect string to an Effect.
// Unknown values are rejected so the caller can fail the load.
func ParseEffect(s string) (Effect, bool) {
	switch Effect(strings.ToLower(strings.TrimSpace(s))) {
	case Allow:
		return Allow, true
	case Deny:
		return Deny, true
	case Confirm:
		return Confirm, true
	default:
		return "", false
	}
}

// Verdict is the policy outcome attached to a ToolCallRequest before execution.
// Runtime marks a denial issued without policy evaluation, for proposals the
// agent runtime could not execute.
type Verdict struct {
	Effect  Effect `json:"effect"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Runtime bool   `json:"runtime,omitempty"`
}

func (v Verdict) String() string {
	switch v.Effect {
	case Deny:
		return fmt.Sprintf("Deny(%s)", v.Reason)
	case Confirm:
		return fmt.Sprintf("RequireConfirmation(%s)", v.Reason)
	default:
		return "Allow"
	}
}

// OriginAgent marks requests proposed by the agent runtime.
const OriginAgent = "agent"

// Intent is one operator request. RunID is assigned monotonically by the governor.
type Intent struct {
	RunID     uint64    `json:"run_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCallRequest is a proposed tool invocation. It is never mutated after creation.
type ToolCallRequest struct {
	ID        string    `json:"id"`
	RunID     uint64    `json:"run_id"`
	Action    string    `json:"action"`
	Args      Args      `json:"args"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"ts"`
}

// ConfirmationDecision is a human answer to a RequireConfirmation verdict.
type ConfirmationDecision struct {
	Approved  bool      `json:"approved"`
	Comment   string    `json:"comment,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// LogEntry is one row of the tool-call trail.
type LogEntry struct {
	Seq      int                   `json:"seq"`
	Request  ToolCallRequest       `json:"request"`
	Verdict  Verdict               `json:"verdict"`
	Decision *ConfirmationDecision `json:"decision,omitempty"`
	Released bool                  `json:"released"`
	Executed bool                  `json:"executed"`
	Result   string                `json:"result,omitempty"`
	PrevHash string                `json:"prev_hash,omitempty"`
	Hash     string                `json:"hash,omitempty"`
}

// Criterion is a named property the final answer is judged against.
type Criterion struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Evaluation is the judge's verdict on one criterion.
type Evaluation struct {
	CriterionID string `json:"criterion_id"`
	Satisfied   bool   `json:"satisfied"`
	Rationale   string `json:"rationale"`
	Score       *int   `json:"score,omitempty"`
}

// Unresolved records a criterion whose judging could not complete.
type Unresolved struct {
	CriterionID string `json:"criterion_id"`
	Error       string `json:"error"`
}

// Report is the terminal artifact of one governed run.
type Report struct {
	RunID            uint64       `json:"run_id"`
	SessionID        string       `json:"session_id,omitempty"`
	Intent           string       `json:"intent"`
	ConstitutionHash string       `json:"constitution_hash,omitempty"`
	State            RunState     `json:"state"`
	Aborted          bool         `json:"aborted"`
	Error            string       `json:"error,omitempty"`
	ToolCalls        []LogEntry   `json:"tool_call_log"`
	FinalAnswer      string       `json:"final_answer"`
	Evaluations      []Evaluation `json:"evaluations"`
	Unresolved       []Unresolved `json:"unresolved,omitempty"`
	OverallPass      bool         `json:"overall_pass"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
}

// ComputeOverallPass is true iff the run completed and every criterion was
// judged satisfied. Unresolved criteria count as unsatisfied.
func (r *Report) ComputeOverallPass() bool {
	if r.Aborted || len(r.Unresolved) > 0 || len(r.Evaluations) == 0 {
		return false
	}
	for _, e := range r.Evaluations {
		if !e.Satisfied {
			return false
		}
	}
	return true
}

// NotPerformed returns the entries whose action never executed.
func (r *Report) NotPerformed() []LogEntry {
	var out []LogEntry
	for _, e := range r.ToolCalls {
		if !e.Executed {
			out = append(out, e)
		}
	}
	return out
}

// Describe renders the call as action(arg=value, ...).
func (r ToolCallRequest) Describe() string {
	return r.Action + "(" + r.Args.String() + ")"
}

// Clearance is the hook dispatcher's answer to a proposed tool call.
type Clearance struct {
	Allowed   bool                  `json:"allowed"`
	RequestID string                `json:"request_id"`
	Verdict   Verdict               `json:"verdict"`
	Decision  *ConfirmationDecision `json:"decision,omitempty"`
}

// Explain returns the message an agent relays when the call was blocked.
func (c Clearance) Explain() string {
	if c.Allowed {
		return ""
	}
	if c.Verdict.Effect == Deny {
		return "Blocked by policy: " + c.Verdict.Reason
	}
	msg := "Not approved by the operator (" + c.Verdict.Reason + ")"
	if c.Decision != nil && c.Decision.Comment != "" {
		msg += ": " + c.Decision.Comment
	}
	return msg
}
