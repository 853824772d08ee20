package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/intentgov/internal/model"
)

// Match selects the tool calls a rule applies to.
type Match struct {
	Action string
	Args   []Constraint
}

// Rule is one constitution entry. Rules are evaluated in document order (first match wins).
type Rule struct {
	Name   string
	Match  Match
	When   string
	Effect model.Effect
	Reason string

	when *vm.Program
}

type ruleDoc struct {
	Name   string   `yaml:"name,omitempty"`
	Match  matchDoc `yaml:"match"`
	When   string   `yaml:"when,omitempty"`
	Effect string   `yaml:"effect"`
	Reason string   `yaml:"reason,omitempty"`
}

type matchDoc struct {
	Action string     `yaml:"action"`
	Args   *yaml.Node `yaml:"args,omitempty"`
}

type constitutionDoc struct {
	Rules []ruleDoc `yaml:"rules"`
}

// whenEnv is the environment rule guards are compiled against.
func whenEnv() map[string]any {
	return map[string]any{
		"session": map[string]any{},
		"action":  "",
		"args":    map[string]any{},
	}
}

// Load parses a constitution document. The root is either a sequence of rules
// or a mapping with a "rules" key. Malformed, empty, or unknown-effect
// documents fail with a *model.ConfigError naming source.
func Load(data []byte, source string) ([]Rule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &model.ConfigError{Source: source, Err: fmt.Errorf("parse constitution: %w", err)}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, model.NewConfigError(source, "constitution is empty")
	}

	doc := root.Content[0]
	var seq *yaml.Node
	switch doc.Kind {
	case yaml.SequenceNode:
		seq = doc
	case yaml.MappingNode:
		for i := 0; i+1 < len(doc.Content); i += 2 {
			if doc.Content[i].Value == "rules" {
				seq = doc.Content[i+1]
				break
			}
		}
		if seq == nil {
			return nil, model.NewConfigError(source, "constitution has no \"rules\" key")
		}
	default:
		return nil, model.NewConfigError(source, "constitution root must be a sequence or a mapping")
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, model.NewConfigError(source, "\"rules\" must be a sequence")
	}

	var docs []ruleDoc
	if err := seq.Decode(&docs); err != nil {
		return nil, &model.ConfigError{Source: source, Err: fmt.Errorf("decode rules: %w", err)}
	}
	if len(docs) == 0 {
		return nil, model.NewConfigError(source, "constitution has no rules")
	}

	rules := make([]Rule, 0, len(docs))
	for i, d := range docs {
		r, err := compileRule(i, d)
		if err != nil {
			return nil, &model.ConfigError{Source: source, Err: err}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func compileRule(i int, d ruleDoc) (Rule, error) {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("rule-%d", i+1)
	}

	action := strings.TrimSpace(d.Match.Action)
	if action == "" {
		return Rule{}, fmt.Errorf("rule %s: match.action is required", name)
	}

	effect, ok := model.ParseEffect(d.Effect)
	if !ok {
		return Rule{}, fmt.Errorf("rule %s: unknown effect %q (want allow, deny, or confirm)", name, d.Effect)
	}

	r := Rule{
		Name:   name,
		Match:  Match{Action: action},
		When:   strings.TrimSpace(d.When),
		Effect: effect,
		Reason: d.Reason,
	}
	if r.Reason == "" {
		r.Reason = fmt.Sprintf("%s rule %s requires %s", action, name, effect)
	}

	if d.Match.Args != nil && d.Match.Args.Kind != 0 {
		args := d.Match.Args
		if args.Kind != yaml.MappingNode {
			return Rule{}, fmt.Errorf("rule %s: match.args must be a mapping", name)
		}
		for j := 0; j+1 < len(args.Content); j += 2 {
			c, err := parseConstraint(args.Content[j].Value, args.Content[j+1])
			if err != nil {
				return Rule{}, fmt.Errorf("rule %s: %w", name, err)
			}
			r.Match.Args = append(r.Match.Args, c)
		}
	}

	if r.When != "" {
		prog, err := expr.Compile(r.When, expr.Env(whenEnv()), expr.AsBool())
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: invalid when expression: %w", name, err)
		}
		r.when = prog
	}

	return r, nil
}

// LoadFile reads and parses a constitution file.
func LoadFile(path string) ([]Rule, error) {
	rules, _, err := LoadFileWithHash(path)
	return rules, err
}

// LoadFileWithHash loads a constitution and returns the SHA-256 of its raw bytes.
// A missing file is a ConfigError: governance never runs without rules.
func LoadFileWithHash(path string) ([]Rule, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", model.NewConfigError(path, "constitution file not found")
		}
		return nil, "", &model.ConfigError{Source: path, Err: fmt.Errorf("read constitution: %w", err)}
	}

	rules, err := Load(data, path)
	if err != nil {
		return nil, "", err
	}
	return rules, HashBytes(data), nil
}

// HashBytes returns "sha256:<hex>" of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Marshal renders rules back into the "rules:" document form.
// Rule order and field values survive a Load round trip.
func Marshal(rules []Rule) ([]byte, error) {
	doc := constitutionDoc{Rules: make([]ruleDoc, 0, len(rules))}
	for _, r := range rules {
		d := ruleDoc{
			Name:   r.Name,
			Match:  matchDoc{Action: r.Match.Action},
			When:   r.When,
			Effect: string(r.Effect),
			Reason: r.Reason,
		}
		if len(r.Match.Args) > 0 {
			args := &yaml.Node{Kind: yaml.MappingNode}
			for _, c := range r.Match.Args {
				val, err := constraintNode(c)
				if err != nil {
					return nil, fmt.Errorf("rule %s: %w", r.Name, err)
				}
				args.Content = append(args.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: c.Arg}, val)
			}
			d.Match.Args = args
		}
		doc.Rules = append(doc.Rules, d)
	}
	return yaml.Marshal(doc)
}

// DefaultConstitutionYAML returns a commented constitution for init-constitution.
func DefaultConstitutionYAML() string {
	return `# intentgov constitution
# Generated by: intentgov init-constitution
#
# Rules are evaluated top to bottom. The first rule whose match (and optional
# when guard) holds decides the verdict. A tool call that matches no rule
# requires human confirmation ("no explicit policy").
#
# Fields:
#   name:   optional identifier shown in reports (defaults to rule-<n>)
#   match:
#     action: tool name; exact, "*", "*x*" (contains), "prefix*", "*suffix"
#     args:   every listed constraint must hold; a missing argument never matches
#               amount: ">1000"          threshold (>, >=, <, <=)
#               amount: {gte: 100}       threshold, explicit form
#               note:   {contains: vip}  substring or list element
#               currency: usd            exact value
#   when:   optional expression over session, action, args
#   effect: allow | deny | confirm
#   reason: shown verbatim to the operator

rules:
  - name: refund-large
    match:
      action: refund
      args:
        amount: ">1000"
    effect: confirm
    reason: "Refunds over $1000 require human confirmation."

  - name: refund-standard-tier
    match:
      action: refund
      args:
        amount: ">=100"
    when: 'session.customer_tier != "enterprise"'
    effect: deny
    reason: "Only enterprise accounts can auto-refund $100 or more."

  - name: refund-small
    match:
      action: refund
    effect: allow
    reason: "Standard refund approved."

  - name: cancel-long-tenure
    match:
      action: cancel_subscription
    when: 'session.customer_tenure_days >= 730'
    effect: confirm
    reason: "Customers with over two years of tenure need a retention review before cancellation."

  - name: cancel-standard
    match:
      action: cancel_subscription
    effect: allow
    reason: "Cancellation approved."

  - name: chargebacks
    match:
      action: process_chargeback
    effect: confirm
    reason: "Chargebacks are irreversible."
`
}
