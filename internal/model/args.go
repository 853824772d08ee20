package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Arg is a single named tool argument.
type Arg struct {
	Name  string
	Value any
}

// Args is an ordered mapping of parameter name to value.
// Order is the order in which the agent supplied the arguments.
type Args []Arg

// Get returns the value for name.
func (a Args) Get(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// Map returns an unordered copy for consumers that only need lookup.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, arg := range a {
		m[arg.Name] = arg.Value
	}
	return m
}

// Names returns argument names in order.
func (a Args) Names() []string {
	names := make([]string, len(a))
	for i, arg := range a {
		names[i] = arg.Name
	}
	return names
}

// MarshalJSON encodes Args as a JSON object preserving argument order.
func (a Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, arg := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(arg.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(arg.Value)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", arg.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (a *Args) UnmarshalJSON(data []byte) error {
	parsed, err := ParseArgsJSON(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseArgsJSON decodes a JSON object into Args, keeping the key order of the input.
// Empty input and "null" decode to no arguments.
func ParseArgsJSON(data []byte) (Args, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Args{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("parse args: expected object, got %v", tok)
	}

	args := Args{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse args: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parse args: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("parse args %q: %w", name, err)
		}
		args = append(args, Arg{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	return args, nil
}

// ArgsFromMap builds Args from an unordered map, sorted by name for determinism.
func ArgsFromMap(m map[string]any) Args {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	args := make(Args, 0, len(names))
	for _, n := range names {
		args = append(args, Arg{Name: n, Value: m[n]})
	}
	return args
}

// Fingerprint identifies an action with its exact arguments.
func Fingerprint(action string, args Args) string {
	b, err := args.MarshalJSON()
	if err != nil {
		return action
	}
	return action + " " + string(b)
}

// String renders args as name=value pairs in order, e.g. customer_id="C-1", amount=5000.
func (a Args) String() string {
	parts := make([]string, len(a))
	for i, arg := range a {
		v, err := json.Marshal(arg.Value)
		if err != nil {
			v = []byte(fmt.Sprint(arg.Value))
		}
		parts[i] = arg.Name + "=" + string(v)
	}
	return strings.Join(parts, ", ")
}
