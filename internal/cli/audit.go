package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/sim"
)

var showLast int

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditShowCmd.Flags().IntVarP(&showLast, "last", "n", 0, "Only show the last N reports (0 = all)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report log operations",
	Long:  "Commands for verifying and inspecting reports written by `intentgov run --json`.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <reports.json>",
	Short: "Verify the tool-call log of every report",
	Long: "Reads a stream of JSON reports and recomputes each tool-call log's hash chain.\n" +
		"Also checks that no denied call was executed and every executed confirmation was approved.\n" +
		"Exits 0 if all reports are valid, 1 otherwise.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show <reports.json>",
	Short: "Pretty-print reports",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	reports, err := sim.ReadReports(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range reports {
		res := audit.Verify(r.ToolCalls)
		if res.Valid {
			fmt.Fprintf(out, "OK: run %d, %d entries verified\n", r.RunID, res.Entries)
			continue
		}
		failed++
		fmt.Fprintf(os.Stderr, "FAILED: run %d at entry %d: %s\n", r.RunID, res.ErrorEntry, res.Error)
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	reports, err := sim.ReadReports(args[0])
	if err != nil {
		return err
	}
	if showLast > 0 && len(reports) > showLast {
		reports = reports[len(reports)-showLast:]
	}
	for _, r := range reports {
		if err := renderReport(cmd.OutOrStdout(), r, false); err != nil {
			return err
		}
	}
	return nil
}
