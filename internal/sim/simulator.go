package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
	"github.com/ppiankov/intentgov/internal/redact"
)

// Simulate replays the tool-call logs of recorded reports against another
// constitution and returns the verdicts that would change. session stands in
// for the session state of the recorded runs, which reports do not carry.
func Simulate(reportsPath, constitutionPath string, session map[string]any) (*SimResult, error) {
	rules, err := policy.LoadFile(constitutionPath)
	if err != nil {
		return nil, err
	}
	reports, err := ReadReports(reportsPath)
	if err != nil {
		return nil, err
	}

	result := Replay(reports, policy.NewEngine(rules, session))
	result.ConstitutionPath = constitutionPath
	return result, nil
}

// Replay evaluates every recorded request with engine, in report order.
// Proposals the runtime rejected before policy evaluation are skipped.
func Replay(reports []*model.Report, engine *policy.Engine) *SimResult {
	result := &SimResult{Runs: len(reports)}

	for _, rep := range reports {
		for _, entry := range rep.ToolCalls {
			if entry.Verdict.Runtime {
				continue
			}
			result.TotalCalls++

			v := engine.Evaluate(entry.Request)
			if v.Effect == entry.Verdict.Effect {
				continue
			}

			result.Changes = append(result.Changes, DiffEntry{
				RunID:     rep.RunID,
				Seq:       entry.Seq,
				Call:      entry.Request.Action + "(" + redact.Args(entry.Request.Args, nil).String() + ")",
				OldEffect: string(entry.Verdict.Effect),
				NewEffect: string(v.Effect),
				OldRule:   entry.Verdict.Rule,
				NewRule:   v.Rule,
				OldReason: entry.Verdict.Reason,
				NewReason: v.Reason,
				Executed:  entry.Executed,
			})
			result.ChangedCalls++

			if isPermissive(entry.Verdict.Effect) && isRestrictive(v.Effect) {
				result.NewlyHeld++
			}
			if isRestrictive(entry.Verdict.Effect) && isPermissive(v.Effect) {
				result.NewlyAllowed++
			}
		}
	}

	return result
}

// ReadReports decodes a stream of JSON reports, as written by run --json.
func ReadReports(path string) ([]*model.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reports: %w", err)
	}
	defer f.Close()

	var reports []*model.Report
	dec := json.NewDecoder(f)
	for {
		var r model.Report
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return reports, nil
			}
			return nil, fmt.Errorf("decode report %d: %w", len(reports)+1, err)
		}
		reports = append(reports, &r)
	}
}
