package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ppiankov/intentgov/internal/model"
)

// GenesisHash is the prev_hash of the first entry in a sealed trail.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Trail is the append-only tool-call log of one run.
// Entries keep the order in which the agent proposed the calls.
// Nothing is written to disk; the trail lives as long as its Report.
type Trail struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

// NewTrail returns an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Append records the outcome of one interception and returns its sequence
// number (1-based). released reports whether the call was handed to the tool.
func (t *Trail) Append(req model.ToolCallRequest, v model.Verdict, d *model.ConfirmationDecision, released bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d != nil {
		copied := *d
		d = &copied
	}
	seq := len(t.entries) + 1
	t.entries = append(t.entries, model.LogEntry{
		Seq:      seq,
		Request:  req,
		Verdict:  v,
		Decision: d,
		Released: released,
	})
	return seq
}

// MarkExecuted flags the oldest released, not yet executed entry for the same
// action and arguments as executed. It returns the entry's sequence number,
// or 0 when no released entry matches (the call was never let through).
func (t *Trail) MarkExecuted(action string, args model.Args, result string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fp := model.Fingerprint(action, args)
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Released || e.Executed {
			continue
		}
		if model.Fingerprint(e.Request.Action, e.Request.Args) != fp {
			continue
		}
		e.Executed = true
		e.Result = result
		return e.Seq
	}
	return 0
}

// Len returns the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the entries recorded so far.
func (t *Trail) Entries() []model.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.LogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Seal returns a copy of the trail with the hash chain filled in.
// Each entry's prev_hash is the hash of the previous entry's JSON line,
// starting from GenesisHash.
func (t *Trail) Seal() ([]model.LogEntry, error) {
	entries := t.Entries()
	prev := GenesisHash
	for i := range entries {
		entries[i].PrevHash = prev
		entries[i].Hash = ""
		line, err := json.Marshal(entries[i])
		if err != nil {
			return nil, fmt.Errorf("audit: marshal entry %d: %w", entries[i].Seq, err)
		}
		entries[i].Hash = HashLine(line)
		prev = entries[i].Hash
	}
	return entries, nil
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
