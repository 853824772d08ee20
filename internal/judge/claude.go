package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/victorarias/claude-agent-sdk-go/sdk"
	"github.com/victorarias/claude-agent-sdk-go/types"
)

// DefaultClaudeModel is used when no judge model is configured.
const DefaultClaudeModel = "claude-3-5-haiku-latest"

// ClaudeBackend judges through the Claude agent SDK in a single turn.
type ClaudeBackend struct {
	model string
}

// NewClaudeBackend creates a Claude-backed judge.
func NewClaudeBackend(model string) *ClaudeBackend {
	if model == "" {
		model = DefaultClaudeModel
	}
	return &ClaudeBackend{model: model}
}

// Complete runs one query and returns the first assistant text.
// An SDK failure or an empty reply is an error, never a verdict.
func (b *ClaudeBackend) Complete(ctx context.Context, system, user string) (string, error) {
	messages, err := sdk.RunQuery(ctx, user,
		types.WithModel(b.model),
		types.WithMaxTurns(1),
		types.WithSystemPrompt(system),
	)
	if err != nil {
		return "", fmt.Errorf("claude query: %w", err)
	}

	for _, msg := range messages {
		if m, ok := msg.(*types.AssistantMessage); ok {
			if text := strings.TrimSpace(m.Text()); text != "" {
				return text, nil
			}
		}
	}
	return "", fmt.Errorf("claude returned an empty response")
}
