package sim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/intentgov/internal/model"
)

// DiffEntry represents one recorded call whose verdict changed.
type DiffEntry struct {
	RunID     uint64 `json:"run_id"`
	Seq       int    `json:"seq"`
	Call      string `json:"call"`
	OldEffect string `json:"old_effect"`
	NewEffect string `json:"new_effect"`
	OldRule   string `json:"old_rule,omitempty"`
	NewRule   string `json:"new_rule,omitempty"`
	OldReason string `json:"old_reason"`
	NewReason string `json:"new_reason"`
	Executed  bool   `json:"executed"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	ConstitutionPath string      `json:"constitution_path"`
	Runs             int         `json:"runs"`
	TotalCalls       int         `json:"total_calls"`
	ChangedCalls     int         `json:"changed_calls"`
	NewlyHeld        int         `json:"newly_held"`
	NewlyAllowed     int         `json:"newly_allowed"`
	Changes          []DiffEntry `json:"changes"`
}

func isPermissive(e model.Effect) bool {
	return e == model.Allow
}

// isRestrictive is true for effects that keep a call from running unattended.
func isRestrictive(e model.Effect) bool {
	return e == model.Deny || e == model.Confirm
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded calls from %d runs...\n", r.ConstitutionPath, r.TotalCalls, r.Runs)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		call := d.Call
		if len(call) > 48 {
			call = call[:45] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  run %-4d #%-3d %-48s %s → %s",
			d.RunID, d.Seq, call, d.OldEffect, d.NewEffect)
		if d.NewRule != "" {
			fmt.Fprintf(&b, " (%s)", d.NewRule)
		}
		if d.Executed && isRestrictive(model.Effect(d.NewEffect)) {
			b.WriteString("  was executed")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%d of %d calls changed.", r.ChangedCalls, r.TotalCalls)
	if r.NewlyHeld > 0 || r.NewlyAllowed > 0 {
		fmt.Fprintf(&b, " %d newly held, %d newly allowed.", r.NewlyHeld, r.NewlyAllowed)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
