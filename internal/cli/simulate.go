package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/sim"
)

var (
	simReports      string
	simConstitution string
	simFormat       string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simReports, "reports", "", "Path to reports written by run --json (required)")
	simulateCmd.Flags().StringVar(&simConstitution, "constitution", "", "Path to the candidate constitution (required)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	_ = simulateCmd.MarkFlagRequired("reports")
	_ = simulateCmd.MarkFlagRequired("constitution")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay recorded tool calls against a candidate constitution",
	Long: "Reads recorded reports, re-evaluates each tool call against an alternate\n" +
		"constitution using the configured session, and shows which verdicts changed.\n\n" +
		"Use this to preview constitution changes before deploying them.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	result, err := sim.Simulate(simReports, simConstitution, cfg.Session)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch simFormat {
	case "json":
		s, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, sim.FormatText(result))
	}
	return nil
}
