package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
)

// Run evaluates all cases in a scenario against rules. Cases are independent.
func Run(s *Scenario, rules []policy.Rule) *RunResult {
	engine := policy.NewEngine(rules, s.Session)

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		req := model.ToolCallRequest{
			ID:     fmt.Sprintf("scenario-%d", i+1),
			Action: c.Action,
			Args:   model.Args(c.Args),
			Origin: "scenario",
		}
		v := engine.Evaluate(req)
		expected := strings.ToLower(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:    i + 1,
			Call:     req.Describe(),
			Expected: expected,
			Actual:   string(v.Effect),
			Rule:     v.Rule,
			Reason:   v.Reason,
		}
		if c.Rule != "" {
			cr.Expected += " (rule " + c.Rule + ")"
			if v.Rule != "" {
				cr.Actual += " (rule " + v.Rule + ")"
			}
		}

		if string(v.Effect) == expected && (c.Rule == "" || c.Rule == v.Rule) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// Load parses a scenario file. Unknown expectations are rejected so a typo
// cannot pass silently.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	for i, c := range s.Cases {
		if c.Action == "" {
			return nil, fmt.Errorf("scenario %s: case %d has no action", path, i+1)
		}
		if _, ok := model.ParseEffect(c.Expect); !ok {
			return nil, fmt.Errorf("scenario %s: case %d: expect must be allow, deny or confirm, got %q", path, i+1, c.Expect)
		}
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and runs it against the constitution at
// constitutionPath.
func LoadAndRun(path, constitutionPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	rules, err := policy.LoadFile(constitutionPath)
	if err != nil {
		return nil, fmt.Errorf("load constitution: %w", err)
	}

	result := Run(s, rules)
	result.File = path
	return result, nil
}
