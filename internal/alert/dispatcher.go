package alert

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher is a no-op.
func NewDispatcher(configs []AlertConfig, logger zerolog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{
		configs: configs,
		log:     logger.With().Str("component", "alert").Logger(),
	}
}

// Dispatch sends the event to all webhooks subscribed to event.Event.
// Sends run in goroutines and do not block the caller; they stop when ctx
// is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, event AlertEvent) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(ctx, cfg, event); err != nil {
				d.log.Warn().Err(err).Str("url", cfg.URL).Str("event", event.Event).Msg("alert delivery failed")
			}
		}(cfg)
	}
}

// Wait blocks until in-flight sends finish. Used before process exit.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Event {
			return true
		}
	}
	return false
}
