package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Constitution diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Constitution diff: %s → %s\n\n  Rules:\n", r.OldPath, r.NewPath)

	for _, rc := range r.RuleChanges {
		switch rc.Type {
		case "added":
			fmt.Fprintf(&b, "    + %s: %s\n", rc.Rule, rc.Detail)
		case "removed":
			fmt.Fprintf(&b, "    - %s: %s\n", rc.Rule, rc.Detail)
		case "moved":
			fmt.Fprintf(&b, "    ↕ %s: %s (first match wins)\n", rc.Rule, rc.Detail)
		case "changed":
			fmt.Fprintf(&b, "    ~ %s\n", rc.Rule)
			for _, c := range rc.Changes {
				fmt.Fprintf(&b, "        %-14s %q → %q", c.Field+":", c.Old, c.New)
				if c.Comment != "" {
					fmt.Fprintf(&b, "  (%s)", c.Comment)
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}
