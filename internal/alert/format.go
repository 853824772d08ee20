package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Run:* %d", event.RunID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.SessionID)},
	}
	if event.Action != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s(%s)", event.Action, event.Args)})
	}
	if event.Reason != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)})
	}
	if len(event.Criteria) > 0 {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Criteria:* %s", strings.Join(event.Criteria, ", "))})
	}

	blocks := []any{
		map[string]any{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("intentgov: %s", event.Event),
			},
		},
	}
	if event.Intent != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Intent:* %s", event.Intent)},
		})
	}
	blocks = append(blocks, map[string]any{"type": "section", "fields": fields})

	return json.Marshal(map[string]any{"blocks": blocks})
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	summary := fmt.Sprintf("intentgov %s: run %d", event.Event, event.RunID)
	if event.Action != "" {
		summary = fmt.Sprintf("intentgov %s: %s", event.Event, event.Action)
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  summary,
			"severity": severityFor(event.Event),
			"source":   "intentgov",
			"custom_details": map[string]any{
				"session_id":        event.SessionID,
				"run_id":            event.RunID,
				"intent":            event.Intent,
				"action":            event.Action,
				"args":              event.Args,
				"reason":            event.Reason,
				"rule":              event.Rule,
				"criteria":          event.Criteria,
				"constitution_hash": event.ConstitutionHash,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event string) string {
	switch event {
	case EventRunAborted:
		return "critical"
	case EventEvaluationFailed:
		return "error"
	case EventDeny:
		return "warning"
	default:
		return "info"
	}
}
