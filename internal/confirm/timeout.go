package confirm

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/intentgov/internal/model"
)

// TimedOutComment is recorded when no decision arrives in time.
const TimedOutComment = "timed out"

// WithTimeout bounds how long p may stall. When d elapses the call is
// rejected. d <= 0 returns p unchanged.
func WithTimeout(p DecisionProvider, d time.Duration) DecisionProvider {
	if d <= 0 {
		return p
	}
	return ProviderFunc(func(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		dec, err := p.Decide(tctx, req, reason)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return model.ConfirmationDecision{
				Approved:  false,
				Comment:   TimedOutComment,
				DecidedAt: time.Now().UTC(),
			}, nil
		}
		return dec, err
	})
}
