package agent

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultBaseIntent is the system prompt every run starts from.
const DefaultBaseIntent = "You are a support agent for Acme Corp."

// governanceNote tells the model how blocked tool calls are reported.
const governanceNote = "Some actions are governed. When a tool result says the action was NOT PERFORMED, " +
	"do not retry it and do not claim it happened; tell the customer what was not done and why."

// DefaultStrategies maps an org_goal to the priority injected into the instructions.
var DefaultStrategies = map[string]string{
	"retention": "PRIORITY: This quarter is retention-focused. Be lenient with long-term users. " +
		"Never deny a refund request from users with more than two years of tenure without escalating first. " +
		"Offer loyalty discounts proactively.",
	"cost_reduction": "PRIORITY: Minimise refund approvals. Offer store credit or service extensions " +
		"as alternatives first. Only approve cash refunds when the customer explicitly insists " +
		"after being presented with alternatives.",
	"growth": "PRIORITY: Maximise upsell opportunities. Highlight premium features during every interaction. " +
		"When resolving an issue, mention how upgrading would have prevented it.",
}

// Retriever builds system instructions from session state, so strategy can
// change between runs without touching the agent.
type Retriever struct {
	base       string
	strategies map[string]string
	log        zerolog.Logger
}

// NewRetriever creates a Retriever. overrides are merged over DefaultStrategies.
func NewRetriever(base string, overrides map[string]string, logger zerolog.Logger) *Retriever {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseIntent
	}
	strategies := make(map[string]string, len(DefaultStrategies)+len(overrides))
	for k, v := range DefaultStrategies {
		strategies[k] = v
	}
	for k, v := range overrides {
		strategies[k] = v
	}
	return &Retriever{
		base:       base,
		strategies: strategies,
		log:        logger.With().Str("component", "retriever").Logger(),
	}
}

// Instructions returns the system prompt for session.
func (r *Retriever) Instructions(session map[string]any) string {
	tier := sessionString(session, "customer_tier", "standard")
	goal := sessionString(session, "org_goal", "")

	var b strings.Builder
	b.WriteString(r.base)
	fmt.Fprintf(&b, "\n\nThe current customer's tier is: %s.", tier)

	if s, ok := r.strategies[goal]; ok {
		b.WriteString("\n")
		b.WriteString(s)
		r.log.Debug().Str("org_goal", goal).Str("tier", tier).Msg("strategy injected")
	} else {
		r.log.Debug().Str("org_goal", goal).Str("tier", tier).Msg("no strategy for goal")
	}

	b.WriteString("\n\n")
	b.WriteString(governanceNote)
	return b.String()
}

func sessionString(session map[string]any, key, def string) string {
	v, ok := session[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return s
}
