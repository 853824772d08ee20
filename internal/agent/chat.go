package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/llm"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/redact"
	"github.com/ppiankov/intentgov/internal/tools"
)

// DefaultMaxSteps bounds model turns per run.
const DefaultMaxSteps = 8

// Chatter is a chat-completions backend with tool calling.
type Chatter interface {
	Chat(ctx context.Context, r llm.Request) (*llm.Response, error)
}

// ChatConfig tunes a ChatAgent.
type ChatConfig struct {
	MaxSteps    int
	Temperature float64
	Retriever   *Retriever
	Session     map[string]any
}

// ChatAgent runs an OpenAI-style tool-calling loop over a tool registry.
type ChatAgent struct {
	chat  Chatter
	tools *tools.Registry
	cfg   ChatConfig
	log   zerolog.Logger
}

// NewChatAgent creates a ChatAgent.
func NewChatAgent(chat Chatter, reg *tools.Registry, cfg ChatConfig, logger zerolog.Logger) *ChatAgent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Retriever == nil {
		cfg.Retriever = NewRetriever("", nil, logger)
	}
	return &ChatAgent{
		chat:  chat,
		tools: reg,
		cfg:   cfg,
		log:   logger.With().Str("component", "agent").Logger(),
	}
}

// Specs returns the registry's tools in the chat-completions tool format.
func Specs(reg *tools.Registry) []llm.Tool {
	all := reg.All()
	specs := make([]llm.Tool, len(all))
	for i, t := range all {
		specs[i] = llm.Tool{
			Type: "function",
			Function: llm.ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		}
	}
	return specs
}

// Run drives the model until it answers without tool calls. Every tool call
// goes through hooks; blocked calls are reported back to the model instead of
// executing.
func (a *ChatAgent) Run(ctx context.Context, intent string, hooks Hooks) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: a.cfg.Retriever.Instructions(a.cfg.Session)},
		{Role: "user", Content: intent},
	}
	specs := Specs(a.tools)

	for step := 1; step <= a.cfg.MaxSteps; step++ {
		resp, err := a.chat.Chat(ctx, llm.Request{
			Messages:    messages,
			Tools:       specs,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("model call (step %d): %w", step, err)
		}

		msg := resp.Message
		if len(msg.ToolCalls) == 0 {
			answer := strings.TrimSpace(msg.Content)
			if answer == "" {
				return "", fmt.Errorf("model returned an empty answer (step %d)", step)
			}
			return answer, nil
		}

		msg.Role = "assistant"
		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    a.invoke(ctx, tc, hooks),
			})
		}
	}
	return "", fmt.Errorf("%w (%d steps)", ErrStepsExhausted, a.cfg.MaxSteps)
}

// invoke returns the tool message content for one proposed call.
func (a *ChatAgent) invoke(ctx context.Context, tc llm.ToolCall, hooks Hooks) string {
	name := tc.Function.Name
	args, argsErr := model.ParseArgsJSON([]byte(tc.Function.Arguments))

	tool, ok := a.tools.Get(name)
	if !ok {
		a.log.Warn().Str("action", name).Msg("model proposed an unknown tool")
		hooks.RejectToolCall(ctx, name, args, ReasonUnknownTool)
		return fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", name, strings.Join(a.tools.Names(), ", "))
	}
	if argsErr != nil {
		a.log.Warn().Err(argsErr).Str("action", name).Msg("unparseable tool arguments")
		hooks.RejectToolCall(ctx, name, nil, ReasonBadArgs+": "+argsErr.Error())
		return fmt.Sprintf("Error: invalid arguments for %s: %v", name, argsErr)
	}

	clearance := hooks.BeforeToolCall(ctx, name, args)
	if !clearance.Allowed {
		a.log.Info().
			Str("action", name).
			Str("request_id", clearance.RequestID).
			Msg("tool call blocked")
		return notPerformed(name, clearance)
	}

	result, err := tool.Run(ctx, args)
	if err != nil {
		result = "Error: " + err.Error()
	}
	hooks.AfterToolCall(ctx, name, args, result)
	a.log.Debug().
		Str("action", name).
		Str("args", redact.Args(args, nil).String()).
		Msg("tool call executed")
	return result
}

func notPerformed(action string, c model.Clearance) string {
	return fmt.Sprintf("NOT PERFORMED: %s was not performed. %s. Do not retry this action; tell the user it was not done.",
		action, c.Explain())
}
