// Package agent is the boundary between the governor and an autonomous
// tool-calling agent.
package agent

import (
	"context"
	"errors"

	"github.com/ppiankov/intentgov/internal/model"
)

// ErrStepsExhausted is returned when the agent keeps calling tools without
// producing a final answer.
var ErrStepsExhausted = errors.New("agent step limit reached without a final answer")

// Hooks must be invoked around every tool execution. A tool runs only when
// BeforeToolCall returns an allowed clearance. Proposals the runtime cannot
// execute at all (unknown tool, malformed arguments) go to RejectToolCall so
// they still appear in the trail.
type Hooks interface {
	BeforeToolCall(ctx context.Context, action string, args model.Args) model.Clearance
	AfterToolCall(ctx context.Context, action string, args model.Args, result string)
	RejectToolCall(ctx context.Context, action string, args model.Args, reason string) model.Clearance
}

// Reasons recorded for proposals rejected before policy evaluation.
const (
	ReasonUnknownTool = "unknown tool"
	ReasonBadArgs     = "unparseable arguments"
)

// Runtime turns one intent into a final answer.
type Runtime interface {
	Run(ctx context.Context, intent string, hooks Hooks) (string, error)
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(ctx context.Context, intent string, hooks Hooks) (string, error)

// Run calls f.
func (f RuntimeFunc) Run(ctx context.Context, intent string, hooks Hooks) (string, error) {
	return f(ctx, intent, hooks)
}
