package audit

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/intentgov/internal/model"
)

// VerifyResult holds the outcome of a trail check.
type VerifyResult struct {
	Valid      bool   `json:"valid"`
	Entries    int    `json:"entries"`
	Error      string `json:"error,omitempty"`
	ErrorEntry int    `json:"error_entry,omitempty"`
}

// Verify recomputes the hash chain of a sealed trail and checks the
// governance invariants on every entry:
//   - a Deny verdict is never released or executed
//   - an executed RequireConfirmation entry carries an approving decision
//   - an executed entry was released
//   - sequence numbers are contiguous
func Verify(entries []model.LogEntry) VerifyResult {
	prev := GenesisHash
	for i, e := range entries {
		n := i + 1
		if e.Seq != n {
			return fail(n, "sequence gap: expected %d, got %d", n, e.Seq)
		}
		if e.PrevHash != prev {
			return fail(n, "hash mismatch: expected prev_hash %s, got %s", prev, e.PrevHash)
		}

		unhashed := e
		unhashed.Hash = ""
		line, err := json.Marshal(unhashed)
		if err != nil {
			return fail(n, "marshal: %v", err)
		}
		if got := HashLine(line); got != e.Hash {
			return fail(n, "entry modified: hash %s does not match content %s", e.Hash, got)
		}
		prev = e.Hash

		if err := checkEntry(e); err != "" {
			return fail(n, "%s", err)
		}
	}
	return VerifyResult{Valid: true, Entries: len(entries)}
}

// CheckInvariants validates the governance invariants without a hash chain.
func CheckInvariants(entries []model.LogEntry) VerifyResult {
	for i, e := range entries {
		if err := checkEntry(e); err != "" {
			return fail(i+1, "%s", err)
		}
	}
	return VerifyResult{Valid: true, Entries: len(entries)}
}

func checkEntry(e model.LogEntry) string {
	if e.Executed && !e.Released {
		return fmt.Sprintf("%s executed without being released", e.Request.Action)
	}
	switch e.Verdict.Effect {
	case model.Deny:
		if e.Released || e.Executed {
			return fmt.Sprintf("denied %s was released", e.Request.Action)
		}
	case model.Confirm:
		if e.Released && (e.Decision == nil || !e.Decision.Approved) {
			return fmt.Sprintf("%s released without an approving decision", e.Request.Action)
		}
	}
	return ""
}

func fail(entry int, format string, args ...any) VerifyResult {
	return VerifyResult{Error: fmt.Sprintf(format, args...), ErrorEntry: entry}
}
