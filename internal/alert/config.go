package alert

import "fmt"

// Event names a governance outcome that can be escalated.
const (
	EventDeny             = "deny"
	EventConfirmRejected  = "confirm_rejected"
	EventEvaluationFailed = "evaluation_failed"
	EventRunAborted       = "run_aborted"
)

// KnownEvents lists every event a webhook may subscribe to.
var KnownEvents = []string{EventDeny, EventConfirmRejected, EventEvaluationFailed, EventRunAborted}

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"     mapstructure:"url"`
	Format  string            `yaml:"format"  json:"format"  mapstructure:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"  mapstructure:"events"`
	Headers map[string]string `yaml:"headers" json:"headers" mapstructure:"headers"`
}

// Validate checks the destination and its subscriptions.
func (c AlertConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("alert url is required")
	}
	switch c.Format {
	case "", "generic", "slack", "pagerduty":
	default:
		return fmt.Errorf("alert %s: unknown format %q", c.URL, c.Format)
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("alert %s: no events subscribed", c.URL)
	}
	for _, e := range c.Events {
		if !known(e) {
			return fmt.Errorf("alert %s: unknown event %q", c.URL, e)
		}
	}
	return nil
}

func known(event string) bool {
	for _, k := range KnownEvents {
		if k == event {
			return true
		}
	}
	return false
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp        string   `json:"timestamp"`
	SessionID        string   `json:"session_id"`
	RunID            uint64   `json:"run_id"`
	Event            string   `json:"event"`
	Intent           string   `json:"intent,omitempty"`
	Action           string   `json:"action,omitempty"`
	Args             string   `json:"args,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	Rule             string   `json:"rule,omitempty"`
	Criteria         []string `json:"criteria,omitempty"`
	ConstitutionHash string   `json:"constitution_hash,omitempty"`
}
