package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/intentgov/internal/approval"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/model"
)

// --- Input/Output types ---

// RefundInput defines parameters for the refund tool.
type RefundInput struct {
	CustomerID string  `json:"customer_id" jsonschema:"the unique customer identifier"`
	Amount     float64 `json:"amount" jsonschema:"dollar amount to refund"`
	Reason     string  `json:"reason,omitempty" jsonschema:"why the refund is issued"`
}

// EmailInput defines parameters for the send_email tool.
type EmailInput struct {
	To      string `json:"to" jsonschema:"recipient email address"`
	Subject string `json:"subject" jsonschema:"email subject line"`
	Body    string `json:"body" jsonschema:"email body text"`
}

// CancelInput defines parameters for the cancel_subscription tool.
type CancelInput struct {
	CustomerID string `json:"customer_id" jsonschema:"the unique customer identifier"`
	Reason     string `json:"reason,omitempty" jsonschema:"why the subscription is cancelled"`
}

// ChargebackInput defines parameters for the process_chargeback tool.
type ChargebackInput struct {
	CustomerID string  `json:"customer_id" jsonschema:"the unique customer identifier"`
	Amount     float64 `json:"amount" jsonschema:"dollar amount of the chargeback"`
}

// ToolOutput is returned by every governed tool.
type ToolOutput struct {
	Performed bool   `json:"performed"`
	Result    string `json:"result,omitempty"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason,omitempty"`
	Rule      string `json:"rule,omitempty"`
	RequestID string `json:"request_id"`
}

// CheckInput defines parameters for the governance_check tool.
type CheckInput struct {
	Action string         `json:"action" jsonschema:"tool name"`
	Args   map[string]any `json:"args,omitempty" jsonschema:"tool arguments"`
}

// CheckOutput contains the verdict.
type CheckOutput struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule,omitempty"`
}

// LogInput is empty.
type LogInput struct{}

// LogOutput is the session trail.
type LogOutput struct {
	Entries []model.LogEntry `json:"entries"`
	Summary audit.Summary    `json:"summary"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists waiting confirmations.
type PendingOutput struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem describes one waiting confirmation.
type PendingItem struct {
	ID        string `json:"id"`
	Call      string `json:"call"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// --- Handlers ---

func (s *Server) handleRefund(ctx context.Context, req *mcpsdk.CallToolRequest, input RefundInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	args := model.Args{
		{Name: "customer_id", Value: input.CustomerID},
		{Name: "amount", Value: input.Amount},
	}
	if input.Reason != "" {
		args = append(args, model.Arg{Name: "reason", Value: input.Reason})
	}
	return s.call(ctx, "refund", args)
}

func (s *Server) handleSendEmail(ctx context.Context, req *mcpsdk.CallToolRequest, input EmailInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.call(ctx, "send_email", model.Args{
		{Name: "to", Value: input.To},
		{Name: "subject", Value: input.Subject},
		{Name: "body", Value: input.Body},
	})
}

func (s *Server) handleCancel(ctx context.Context, req *mcpsdk.CallToolRequest, input CancelInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	args := model.Args{{Name: "customer_id", Value: input.CustomerID}}
	if input.Reason != "" {
		args = append(args, model.Arg{Name: "reason", Value: input.Reason})
	}
	return s.call(ctx, "cancel_subscription", args)
}

func (s *Server) handleChargeback(ctx context.Context, req *mcpsdk.CallToolRequest, input ChargebackInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.call(ctx, "process_chargeback", model.Args{
		{Name: "customer_id", Value: input.CustomerID},
		{Name: "amount", Value: input.Amount},
	})
}

// call clears action through the hooks and runs it only when released.
// A blocked call is an error result carrying the verdict reason.
func (s *Server) call(ctx context.Context, action string, args model.Args) (*mcpsdk.CallToolResult, ToolOutput, error) {
	tool, ok := s.tools.Get(action)
	if !ok {
		return nil, ToolOutput{}, fmt.Errorf("unknown tool %q", action)
	}

	c := s.hooks.BeforeToolCall(ctx, action, args)
	out := ToolOutput{
		Verdict:   c.Verdict.String(),
		Reason:    c.Verdict.Reason,
		Rule:      c.Verdict.Rule,
		RequestID: c.RequestID,
	}
	if !c.Allowed {
		out.Result = c.Explain()
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "NOT PERFORMED: " + out.Result}},
		}, out, nil
	}

	result, err := tool.Run(ctx, args)
	if err != nil {
		result = "Error: " + err.Error()
	}
	s.hooks.AfterToolCall(ctx, action, args, result)

	out.Performed = err == nil
	out.Result = result
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Action == "" {
		return nil, CheckOutput{}, fmt.Errorf("action is required")
	}
	v := s.engine.Evaluate(model.ToolCallRequest{
		Action: input.Action,
		Args:   model.ArgsFromMap(input.Args),
		Origin: "check",
	})
	return nil, CheckOutput{Verdict: string(v.Effect), Reason: v.Reason, Rule: v.Rule}, nil
}

// handleLog declares no output schema: entries carry ordered args, which
// encode as a JSON object rather than the slice their Go type suggests.
func (s *Server) handleLog(ctx context.Context, req *mcpsdk.CallToolRequest, input LogInput) (*mcpsdk.CallToolResult, any, error) {
	entries, err := s.hooks.Trail().Seal()
	if err != nil {
		return nil, nil, fmt.Errorf("seal trail: %w", err)
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	return nil, LogOutput{Entries: entries, Summary: audit.Summarize(entries)}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, fmt.Errorf("list approvals: %w", err)
	}
	out := PendingOutput{Pending: []PendingItem{}}
	for _, a := range list {
		if a.Status != approval.StatusPending {
			continue
		}
		out.Pending = append(out.Pending, PendingItem{
			ID:        a.Key,
			Call:      a.Action + "(" + a.Args.String() + ")",
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
