package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/neurorouter"
	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/model"
)

// DefaultThreshold is the minimum score that counts as satisfied when the
// judge only returns a score.
const DefaultThreshold = 7

// Backend is an external text-evaluating capability.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config tunes an Evaluator.
type Config struct {
	Threshold int
	// Timeout bounds each criterion's judgment. Zero means no bound.
	Timeout time.Duration
}

// Result holds judged criteria in criteria order, and the ones whose
// judging could not complete.
type Result struct {
	Evaluations []model.Evaluation
	Unresolved  []*model.EvaluationError
}

// Evaluator scores a final answer against criteria.
type Evaluator struct {
	backend Backend
	cfg     Config
	log     zerolog.Logger
}

// New creates an Evaluator.
func New(backend Backend, cfg Config, logger zerolog.Logger) *Evaluator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Evaluator{
		backend: backend,
		cfg:     cfg,
		log:     logger.With().Str("component", "judge").Logger(),
	}
}

type outcome struct {
	ev  model.Evaluation
	err error
}

// Evaluate judges every criterion independently and in parallel.
// Each goroutine writes only its own slot; results are reported in criteria
// order once all have finished. A failed judgment becomes an EvaluationError
// for that criterion alone and is never counted as satisfied or failed.
func (e *Evaluator) Evaluate(ctx context.Context, in Input, criteria []model.Criterion) Result {
	outcomes := make([]outcome, len(criteria))

	var wg sync.WaitGroup
	for i, c := range criteria {
		wg.Add(1)
		go func(i int, c model.Criterion) {
			defer wg.Done()
			ev, err := e.judgeOne(ctx, in, c)
			outcomes[i] = outcome{ev: ev, err: err}
		}(i, c)
	}
	wg.Wait()

	var res Result
	for i, c := range criteria {
		o := outcomes[i]
		if o.err != nil {
			e.log.Warn().Err(o.err).Str("criterion", c.ID).Msg("criterion unresolved")
			res.Unresolved = append(res.Unresolved, &model.EvaluationError{CriterionID: c.ID, Err: o.err})
			continue
		}
		e.log.Debug().Str("criterion", c.ID).Bool("satisfied", o.ev.Satisfied).Msg("criterion judged")
		res.Evaluations = append(res.Evaluations, o.ev)
	}
	return res
}

func (e *Evaluator) judgeOne(ctx context.Context, in Input, c model.Criterion) (model.Evaluation, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	raw, err := e.backend.Complete(ctx, systemPrompt, BuildPrompt(in, c))
	if err != nil {
		switch {
		case errors.Is(err, neurorouter.ErrRateLimited):
			return model.Evaluation{}, fmt.Errorf("judge rate limited: %w", err)
		case errors.Is(err, context.DeadlineExceeded):
			return model.Evaluation{}, fmt.Errorf("judge timed out: %w", err)
		}
		return model.Evaluation{}, err
	}

	ev, err := ParseVerdict(raw, e.cfg.Threshold)
	if err != nil {
		return model.Evaluation{}, err
	}
	ev.CriterionID = c.ID
	return ev, nil
}
