package policydiff

import (
	"fmt"
	"strings"

	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
)

// Change represents one field of a rule that differs.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a rule addition, removal, or modification.
type RuleChange struct {
	Type    string   `json:"type"` // "added", "removed", "changed", "moved"
	Rule    string   `json:"rule"`
	Detail  string   `json:"detail,omitempty"`
	Changes []Change `json:"changes,omitempty"`
}

// DiffResult holds the comparison of two constitutions.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two rule lists. Rules are paired by name; since the first
// matching rule wins, a surviving rule whose position changed is reported
// as moved.
func Diff(old, new []policy.Rule) *DiffResult {
	r := &DiffResult{}

	oldIdx := make(map[string]int, len(old))
	for i, rule := range old {
		oldIdx[rule.Name] = i
	}
	newIdx := make(map[string]int, len(new))
	for i, rule := range new {
		newIdx[rule.Name] = i
	}

	for _, rule := range old {
		if _, ok := newIdx[rule.Name]; !ok {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:   "removed",
				Rule:   rule.Name,
				Detail: ruleLabel(rule),
			})
		}
	}

	// relative order of rules present in both documents
	var oldOrder, newOrder []string
	for _, rule := range old {
		if _, ok := newIdx[rule.Name]; ok {
			oldOrder = append(oldOrder, rule.Name)
		}
	}
	for _, rule := range new {
		if _, ok := oldIdx[rule.Name]; ok {
			newOrder = append(newOrder, rule.Name)
		}
	}
	oldPos := make(map[string]int, len(oldOrder))
	for i, name := range oldOrder {
		oldPos[name] = i
	}

	for i, rule := range new {
		j, exists := oldIdx[rule.Name]
		if !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:   "added",
				Rule:   rule.Name,
				Detail: ruleLabel(rule),
			})
			continue
		}
		if changes := diffRule(old[j], rule); len(changes) > 0 {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    "changed",
				Rule:    rule.Name,
				Detail:  ruleLabel(rule),
				Changes: changes,
			})
		}
		if p := oldPos[rule.Name]; p != indexOf(newOrder, rule.Name) {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:   "moved",
				Rule:   rule.Name,
				Detail: fmt.Sprintf("position %d → %d", j+1, i+1),
			})
		}
	}

	r.HasChanges = len(r.RuleChanges) > 0
	return r
}

func diffRule(old, new policy.Rule) []Change {
	var out []Change
	if old.Effect != new.Effect {
		out = append(out, Change{
			Field:   "effect",
			Old:     string(old.Effect),
			New:     string(new.Effect),
			Comment: effectComment(old.Effect, new.Effect),
		})
	}
	if !strings.EqualFold(old.Match.Action, new.Match.Action) {
		out = append(out, Change{Field: "match.action", Old: old.Match.Action, New: new.Match.Action})
	}
	if o, n := constraints(old), constraints(new); o != n {
		out = append(out, Change{Field: "match.args", Old: o, New: n})
	}
	if old.When != new.When {
		out = append(out, Change{Field: "when", Old: old.When, New: new.When})
	}
	if old.Reason != new.Reason {
		out = append(out, Change{Field: "reason", Old: old.Reason, New: new.Reason})
	}
	return out
}

// strictness orders effects by how much they hold back execution.
func strictness(e model.Effect) int {
	switch e {
	case model.Deny:
		return 2
	case model.Confirm:
		return 1
	default:
		return 0
	}
}

func effectComment(old, new model.Effect) string {
	if strictness(new) > strictness(old) {
		return "stricter"
	}
	return "looser"
}

func constraints(r policy.Rule) string {
	parts := make([]string, len(r.Match.Args))
	for i, c := range r.Match.Args {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func ruleLabel(r policy.Rule) string {
	label := "action=" + r.Match.Action
	if args := constraints(r); args != "" {
		label += " args=[" + args + "]"
	}
	if r.When != "" {
		label += " when=" + r.When
	}
	return label + " → " + string(r.Effect)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
