package audit

import (
	"github.com/ppiankov/intentgov/internal/model"
)

// Summary holds decision counts for a trail.
type Summary struct {
	Total     int `json:"total"`
	Allowed   int `json:"allowed"`
	Denied    int `json:"denied"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Executed  int `json:"executed"`
	Unmatched int `json:"unmatched"`
}

// Summarize counts outcomes. Unmatched counts confirmations raised by the
// "no explicit policy" default.
func Summarize(entries []model.LogEntry) Summary {
	var s Summary
	for _, e := range entries {
		s.Total++
		switch e.Verdict.Effect {
		case model.Allow:
			s.Allowed++
		case model.Deny:
			s.Denied++
		case model.Confirm:
			if e.Decision != nil && e.Decision.Approved {
				s.Approved++
			} else {
				s.Rejected++
			}
			if e.Verdict.Rule == "" {
				s.Unmatched++
			}
		}
		if e.Executed {
			s.Executed++
		}
	}
	return s
}

// Filter returns entries belonging to runID. Zero returns every entry.
func Filter(entries []model.LogEntry, runID uint64) []model.LogEntry {
	if runID == 0 {
		return entries
	}
	var out []model.LogEntry
	for _, e := range entries {
		if e.Request.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}
