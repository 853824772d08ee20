package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/intentgov/internal/model"
)

// CaseArgs are tool arguments in document order.
type CaseArgs model.Args

// UnmarshalYAML keeps the mapping's key order.
func (a *CaseArgs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: args must be a mapping", node.Line)
	}
	out := make(CaseArgs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v any
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("line %d: arg %q: %w", node.Content[i].Line, node.Content[i].Value, err)
		}
		out = append(out, model.Arg{Name: node.Content[i].Value, Value: v})
	}
	*a = out
	return nil
}

// Case is one test case within a scenario.
type Case struct {
	Action string   `yaml:"action"`
	Args   CaseArgs `yaml:"args,omitempty"`
	Expect string   `yaml:"expect"`
	// Rule optionally pins the name of the deciding rule.
	Rule string `yaml:"rule,omitempty"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name    string         `yaml:"name"`
	Session map[string]any `yaml:"session,omitempty"`
	Cases   []Case         `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Call     string `json:"call"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Rule     string `json:"rule,omitempty"`
	Reason   string `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
