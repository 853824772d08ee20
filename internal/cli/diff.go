package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/policy"
	"github.com/ppiankov/intentgov/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two constitutions and show rule changes",
	Long:  "Loads two constitution files and shows rules added, removed, reordered, or changed,\nmarking effect changes as stricter or looser.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldRules, err := policy.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("load old constitution: %w", err)
	}
	newRules, err := policy.LoadFile(args[1])
	if err != nil {
		return fmt.Errorf("load new constitution: %w", err)
	}

	result := policydiff.Diff(oldRules, newRules)
	result.OldPath = args[0]
	result.NewPath = args[1]

	out := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		s, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, policydiff.FormatText(result))
	}
	return nil
}
