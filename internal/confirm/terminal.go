package confirm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ppiankov/intentgov/internal/model"
)

var (
	promptHeader = color.New(color.FgYellow, color.Bold)
	promptReason = color.New(color.FgYellow)
	promptHint   = color.New(color.Faint)
)

// Terminal asks the operator on an interactive terminal. Unrecognised
// answers are re-prompted, never defaulted.
type Terminal struct {
	in  *Lines
	out io.Writer
}

// NewTerminal creates a terminal provider reading from in and prompting on out.
func NewTerminal(in *Lines, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Decide prompts until a yes/no answer arrives. End of input is an error,
// which the Gate records as a rejection.
func (t *Terminal) Decide(ctx context.Context, req model.ToolCallRequest, reason string) (model.ConfirmationDecision, error) {
	fmt.Fprintln(t.out)
	promptHeader.Fprintf(t.out, "Confirmation required: %s\n", req.Describe())
	promptReason.Fprintf(t.out, "  Reason: %s\n", reason)
	promptHint.Fprintln(t.out, "  Answer yes or no, optionally followed by \": comment\".")

	for {
		fmt.Fprint(t.out, "Approve? [yes/no]: ")
		line, err := t.in.Next(ctx)
		if err != nil {
			fmt.Fprintln(t.out)
			return model.ConfirmationDecision{}, fmt.Errorf("read confirmation: %w", err)
		}

		approved, comment, ok := ParseAnswer(line)
		if !ok {
			fmt.Fprintf(t.out, "Unrecognised answer %q. Please type yes or no.\n", strings.TrimSpace(line))
			continue
		}
		return model.ConfirmationDecision{
			Approved:  approved,
			Comment:   comment,
			DecidedAt: time.Now().UTC(),
		}, nil
	}
}

// ParseAnswer recognises y, yes, n, no (any case), optionally followed by
// ":" and a free-text comment.
func ParseAnswer(line string) (approved bool, comment string, ok bool) {
	answer := strings.TrimSpace(line)
	if i := strings.IndexByte(answer, ':'); i >= 0 {
		comment = strings.TrimSpace(answer[i+1:])
		answer = strings.TrimSpace(answer[:i])
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, comment, true
	case "n", "no":
		return false, comment, true
	default:
		return false, "", false
	}
}

// RejectAll rejects every confirmation. It backs non-interactive runs.
func RejectAll(reason string) DecisionProvider {
	return ProviderFunc(func(ctx context.Context, req model.ToolCallRequest, _ string) (model.ConfirmationDecision, error) {
		return model.ConfirmationDecision{Approved: false, Comment: reason, DecidedAt: time.Now().UTC()}, nil
	})
}
