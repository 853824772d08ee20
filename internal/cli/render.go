package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/redact"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// renderReport prints a run report either as indented JSON or as tables.
func renderReport(w io.Writer, rep *model.Report, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	fmt.Fprintf(w, "\n%s run %d\n", dimColor.Sprint("---"), rep.RunID)
	if rep.FinalAnswer != "" {
		fmt.Fprintf(w, "\n%s\n", rep.FinalAnswer)
	}

	if len(rep.ToolCalls) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, toolCallTable(rep.ToolCalls))
	}
	if len(rep.Evaluations) > 0 || len(rep.Unresolved) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, evaluationTable(rep))
	}

	fmt.Fprintln(w)
	if rep.Aborted {
		fmt.Fprintf(w, "%s %s\n", failColor.Sprint("ABORTED"), rep.Error)
	}
	if rep.OverallPass {
		fmt.Fprintln(w, passColor.Sprint("PASS"))
	} else {
		fmt.Fprintln(w, failColor.Sprint("FAIL"))
	}
	fmt.Fprintln(w)
	return nil
}

// toolCallTable lists the trail. Policy reasons are printed in full.
func toolCallTable(entries []model.LogEntry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Action", "Args", "Verdict", "Reason", "Decision", "Executed"})
	for _, e := range entries {
		args := redact.Args(e.Request.Args, nil).String()
		t.AppendRow(table.Row{
			e.Seq,
			e.Request.Action,
			truncate(args, 48),
			verdictCell(e.Verdict),
			e.Verdict.Reason,
			decisionCell(e.Decision),
			executedCell(e),
		})
	}
	return t.Render()
}

func verdictCell(v model.Verdict) string {
	switch v.Effect {
	case model.Deny:
		return failColor.Sprint("deny")
	case model.Confirm:
		return warnColor.Sprint("confirm")
	default:
		return passColor.Sprint("allow")
	}
}

func decisionCell(d *model.ConfirmationDecision) string {
	if d == nil {
		return "-"
	}
	s := "rejected"
	if d.Approved {
		s = "approved"
	}
	if d.Comment != "" {
		s += " (" + d.Comment + ")"
	}
	return s
}

func executedCell(e model.LogEntry) string {
	if e.Executed {
		return passColor.Sprint("yes")
	}
	return failColor.Sprint("NOT PERFORMED")
}

func evaluationTable(rep *model.Report) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Criterion", "Result", "Rationale"})
	for _, ev := range rep.Evaluations {
		result := failColor.Sprint("failed")
		if ev.Satisfied {
			result = passColor.Sprint("satisfied")
		}
		if ev.Score != nil {
			result += fmt.Sprintf(" (%d)", *ev.Score)
		}
		t.AppendRow(table.Row{ev.CriterionID, result, truncate(oneLine(ev.Rationale), 60)})
	}
	for _, u := range rep.Unresolved {
		t.AppendRow(table.Row{u.CriterionID, warnColor.Sprint("unresolved"), truncate(oneLine(u.Error), 60)})
	}
	return t.Render()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens plain text to max runes. Apply it before colouring.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
