package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/intentgov/internal/model"
)

// ConstraintKind tags the variant held by a Constraint.
type ConstraintKind string

const (
	KindEquals    ConstraintKind = "equals"
	KindContains  ConstraintKind = "contains"
	KindThreshold ConstraintKind = "threshold"
)

// Comparator is the relation used by a threshold constraint.
type Comparator string

const (
	OpGT  Comparator = ">"
	OpGTE Comparator = ">="
	OpLT  Comparator = "<"
	OpLTE Comparator = "<="
)

// operator keys accepted in the explicit mapping form, e.g. {gte: 100}.
var operatorKeys = map[string]Comparator{
	"gt":  OpGT,
	"gte": OpGTE,
	"lt":  OpLT,
	"lte": OpLTE,
}

// Constraint is a predicate over one named argument.
// Exactly one variant is meaningful, selected by Kind.
type Constraint struct {
	Arg   string
	Kind  ConstraintKind
	Value any        // equals, contains
	Op    Comparator // threshold
	Bound float64    // threshold
}

// Match reports whether args satisfy the constraint.
// A missing argument or a value of the wrong shape is a non-match.
func (c Constraint) Match(args model.Args) bool {
	v, ok := args.Get(c.Arg)
	if !ok {
		return false
	}
	switch c.Kind {
	case KindEquals:
		return equalValues(v, c.Value)
	case KindContains:
		return containsValue(v, c.Value)
	case KindThreshold:
		n, ok := toFloat(v)
		if !ok {
			return false
		}
		return compare(n, c.Op, c.Bound)
	default:
		return false
	}
}

func (c Constraint) String() string {
	switch c.Kind {
	case KindThreshold:
		return fmt.Sprintf("%s %s %s", c.Arg, c.Op, formatBound(c.Bound))
	case KindContains:
		return fmt.Sprintf("%s contains %v", c.Arg, c.Value)
	default:
		return fmt.Sprintf("%s == %v", c.Arg, c.Value)
	}
}

func compare(n float64, op Comparator, bound float64) bool {
	switch op {
	case OpGT:
		return n > bound
	case OpGTE:
		return n >= bound
	case OpLT:
		return n < bound
	case OpLTE:
		return n <= bound
	default:
		return false
	}
}

func equalValues(actual, expected any) bool {
	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return a == e
		}
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func containsValue(actual, needle any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(fmt.Sprint(needle)))
	case []any:
		for _, item := range v {
			if equalValues(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == fmt.Sprint(needle) {
				return true
			}
		}
	}
	return false
}

// toFloat coerces numeric arguments. Strings like "$5,000" are accepted
// because agents frequently pass amounts as formatted text.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseConstraint builds a Constraint from one entry of a rule's args mapping.
//
//	amount: ">1000"         threshold
//	amount: {gte: 100}      threshold
//	note: {contains: vip}   containment
//	currency: usd           exact
func parseConstraint(arg string, node *yaml.Node) (Constraint, error) {
	c := Constraint{Arg: arg}

	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!str" {
			if op, bound, ok, err := parseThreshold(node.Value); ok {
				if err != nil {
					return c, err
				}
				c.Kind = KindThreshold
				c.Op = op
				c.Bound = bound
				return c, nil
			}
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return c, fmt.Errorf("arg %q: %w", arg, err)
		}
		c.Kind = KindEquals
		c.Value = v
		return c, nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return c, fmt.Errorf("arg %q: operator mapping must have exactly one key", arg)
		}
		key := strings.ToLower(node.Content[0].Value)
		valNode := node.Content[1]
		if op, ok := operatorKeys[key]; ok {
			var v any
			if err := valNode.Decode(&v); err != nil {
				return c, fmt.Errorf("arg %q: %w", arg, err)
			}
			bound, ok := toFloat(v)
			if !ok {
				return c, fmt.Errorf("arg %q: %s bound %v is not numeric", arg, key, v)
			}
			c.Kind = KindThreshold
			c.Op = op
			c.Bound = bound
			return c, nil
		}
		var v any
		if err := valNode.Decode(&v); err != nil {
			return c, fmt.Errorf("arg %q: %w", arg, err)
		}
		switch key {
		case string(KindEquals):
			c.Kind = KindEquals
		case string(KindContains):
			c.Kind = KindContains
		default:
			return c, fmt.Errorf("arg %q: unknown operator %q", arg, key)
		}
		c.Value = v
		return c, nil

	default:
		return c, fmt.Errorf("arg %q: constraint must be a scalar or an operator mapping", arg)
	}
}

// parseThreshold recognises ">1000", ">= 100", "<5". ok is false when s is not
// a threshold expression at all.
func parseThreshold(s string) (Comparator, float64, bool, error) {
	s = strings.TrimSpace(s)
	var op Comparator
	switch {
	case strings.HasPrefix(s, ">="):
		op = OpGTE
	case strings.HasPrefix(s, "<="):
		op = OpLTE
	case strings.HasPrefix(s, ">"):
		op = OpGT
	case strings.HasPrefix(s, "<"):
		op = OpLT
	default:
		return "", 0, false, nil
	}
	rest := strings.TrimSpace(s[len(op):])
	bound, ok := toFloat(rest)
	if !ok {
		return op, 0, true, fmt.Errorf("threshold %q: bound is not numeric", s)
	}
	return op, bound, true, nil
}

// constraintNode renders a Constraint back into its document form.
func constraintNode(c Constraint) (*yaml.Node, error) {
	switch c.Kind {
	case KindThreshold:
		return &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Style: yaml.DoubleQuotedStyle,
			Value: string(c.Op) + formatBound(c.Bound),
		}, nil
	case KindContains:
		val := &yaml.Node{}
		if err := val.Encode(c.Value); err != nil {
			return nil, err
		}
		return &yaml.Node{
			Kind:    yaml.MappingNode,
			Content: []*yaml.Node{{Kind: yaml.ScalarNode, Value: string(KindContains)}, val},
		}, nil
	default:
		val := &yaml.Node{}
		if err := val.Encode(c.Value); err != nil {
			return nil, err
		}
		if s, ok := c.Value.(string); ok {
			if _, _, isThreshold, _ := parseThreshold(s); isThreshold {
				return &yaml.Node{
					Kind:    yaml.MappingNode,
					Content: []*yaml.Node{{Kind: yaml.ScalarNode, Value: string(KindEquals)}, val},
				}, nil
			}
		}
		return val, nil
	}
}
