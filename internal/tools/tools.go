package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/intentgov/internal/model"
)

// Tool is a simulated side-effecting capability. Run is only ever invoked
// after governance released the call.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Run         func(ctx context.Context, args model.Args) (string, error)
}

// Registry holds tools by name in registration order.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry creates a registry from tools. Names must be unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(tools))}
	for _, t := range tools {
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		r.byName[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
	}
	return r, nil
}

// Default returns the customer-support tools.
func Default() *Registry {
	r, _ := NewRegistry(Refund(), SendEmail(), CancelSubscription(), ProcessChargeback())
	return r
}

// Get returns the tool named name.
func (r *Registry) Get(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Names returns tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Refund issues a (simulated) card refund.
func Refund() Tool {
	return Tool{
		Name:        "refund",
		Description: "Process a refund for a customer via the payment provider.",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "customer_id": {"type": "string", "description": "The unique customer identifier."},
    "amount": {"type": "number", "description": "Dollar amount to refund."},
    "reason": {"type": "string", "description": "Why the refund is issued."}
  },
  "required": ["customer_id", "amount"]
}`),
		Run: func(ctx context.Context, args model.Args) (string, error) {
			customer, err := stringArg(args, "customer_id")
			if err != nil {
				return "", err
			}
			amount, err := amountArg(args)
			if err != nil {
				return "", err
			}
			suffix := customer
			if len(suffix) > 4 {
				suffix = suffix[len(suffix)-4:]
			}
			return fmt.Sprintf("Refund of $%.2f processed for customer %s. Transaction ID: txn_sim_%s_%d",
				amount, customer, suffix, int64(amount*100)), nil
		},
	}
}

// SendEmail sends a (simulated) email to a customer.
func SendEmail() Tool {
	return Tool{
		Name:        "send_email",
		Description: "Send an email to a customer.",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "to": {"type": "string", "description": "Recipient email address."},
    "subject": {"type": "string", "description": "Email subject line."},
    "body": {"type": "string", "description": "Email body text."}
  },
  "required": ["to", "subject", "body"]
}`),
		Run: func(ctx context.Context, args model.Args) (string, error) {
			to, err := stringArg(args, "to")
			if err != nil {
				return "", err
			}
			subject, err := stringArg(args, "subject")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Email sent to %s, subject: %q", to, subject), nil
		},
	}
}

// CancelSubscription cancels a (simulated) subscription.
func CancelSubscription() Tool {
	return Tool{
		Name:        "cancel_subscription",
		Description: "Cancel a customer's subscription.",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "customer_id": {"type": "string", "description": "The unique customer identifier."},
    "reason": {"type": "string", "description": "Why the subscription is cancelled."}
  },
  "required": ["customer_id"]
}`),
		Run: func(ctx context.Context, args model.Args) (string, error) {
			customer, err := stringArg(args, "customer_id")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Subscription cancelled for customer %s.", customer), nil
		},
	}
}

// ProcessChargeback processes an irreversible (simulated) chargeback.
func ProcessChargeback() Tool {
	return Tool{
		Name:        "process_chargeback",
		Description: "Process a full chargeback. This action is irreversible.",
		Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "customer_id": {"type": "string", "description": "The unique customer identifier."},
    "amount": {"type": "number", "description": "Dollar amount of the chargeback."}
  },
  "required": ["customer_id", "amount"]
}`),
		Run: func(ctx context.Context, args model.Args) (string, error) {
			customer, err := stringArg(args, "customer_id")
			if err != nil {
				return "", err
			}
			amount, err := amountArg(args)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Chargeback of $%.2f processed for customer %s. This action is irreversible.",
				amount, customer), nil
		},
	}
}

func stringArg(args model.Args, name string) (string, error) {
	v, ok := args.Get(name)
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", name)
	}
	return s, nil
}

func amountArg(args model.Args) (float64, error) {
	v, ok := args.Get("amount")
	if !ok {
		return 0, fmt.Errorf("missing argument %q", "amount")
	}
	switch n := v.(type) {
	case float64:
		return checkAmount(n)
	case int:
		return checkAmount(float64(n))
	case string:
		s := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(n), "$"), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q is not a number: %q", "amount", n)
		}
		return checkAmount(f)
	default:
		return 0, fmt.Errorf("argument %q is not a number", "amount")
	}
}

func checkAmount(f float64) (float64, error) {
	if f <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v", f)
	}
	return f, nil
}
