package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/model"
)

// DecisionProvider asks a human to approve or reject one pending tool call.
// Implementations block until a decision exists or ctx is done.
type DecisionProvider interface {
	Decide(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error)
}

// ProviderFunc adapts a function to DecisionProvider.
type ProviderFunc func(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error)

// Decide calls f.
func (f ProviderFunc) Decide(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
	return f(ctx, req, reason)
}

// Gate is the Confirmation Gate. Every call asks the provider afresh;
// decisions are never cached, even for identical action and arguments.
type Gate struct {
	provider DecisionProvider
	log      zerolog.Logger
	now      func() time.Time
}

// NewGate creates a Gate around provider.
func NewGate(provider DecisionProvider, logger zerolog.Logger) *Gate {
	return &Gate{
		provider: provider,
		log:      logger.With().Str("component", "confirm").Logger(),
		now:      time.Now,
	}
}

// Confirm blocks until the provider answers. It never fails: a provider
// error or a cancelled context is recorded as a rejection.
func (g *Gate) Confirm(ctx context.Context, req model.ToolCallRequest, reason string) model.ConfirmationDecision {
	d, err := g.provider.Decide(ctx, req, reason)
	if err != nil {
		comment := fmt.Sprintf("confirmation unavailable: %v", err)
		if errors.Is(err, context.Canceled) {
			comment = "cancelled"
		}
		g.log.Warn().Err(err).
			Str("request_id", req.ID).
			Str("action", req.Action).
			Msg("confirmation failed, rejecting")
		d = model.ConfirmationDecision{Approved: false, Comment: comment}
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = g.now().UTC()
	}

	g.log.Info().
		Str("request_id", req.ID).
		Str("action", req.Action).
		Bool("approved", d.Approved).
		Str("comment", d.Comment).
		Msg("confirmation decided")
	return d
}
