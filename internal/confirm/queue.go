package confirm

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/approval"
	"github.com/ppiankov/intentgov/internal/model"
)

// Queue is the headless provider: each confirmation becomes a pending file,
// keyed by the request id, that an operator resolves with
// "intentgov approve <id>" or "intentgov reject <id>".
type Queue struct {
	store  *approval.Store
	notify io.Writer
	log    zerolog.Logger
}

// NewQueue creates a queue provider. notify, if non-nil, receives a one-line
// hint per pending request.
func NewQueue(store *approval.Store, notify io.Writer, logger zerolog.Logger) *Queue {
	return &Queue{
		store:  store,
		notify: notify,
		log:    logger.With().Str("component", "confirm-queue").Logger(),
	}
}

// Decide writes the pending file and waits for its resolution. The file is
// removed once the decision is read, or when ctx ends first.
func (q *Queue) Decide(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
	if _, err := q.store.Request(req, model.Verdict{Effect: model.Confirm, Reason: reason}); err != nil {
		return model.ConfirmationDecision{}, fmt.Errorf("queue confirmation: %w", err)
	}
	defer func() {
		if err := q.store.Consume(req.ID); err != nil {
			q.log.Warn().Err(err).Str("request_id", req.ID).Msg("failed to remove pending confirmation")
		}
	}()

	q.log.Info().
		Str("request_id", req.ID).
		Str("action", req.Action).
		Str("reason", reason).
		Msg("awaiting confirmation")
	if q.notify != nil {
		fmt.Fprintf(q.notify, "pending confirmation %s: %s (%s)\n  intentgov approve %s | intentgov reject %s\n",
			req.ID, req.Describe(), reason, req.ID, req.ID)
	}

	a, err := q.store.Await(ctx, req.ID)
	if err != nil {
		return model.ConfirmationDecision{}, err
	}
	return a.Decision(), nil
}
