package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/governor"
)

var validateVerbose bool

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "List every rule and criterion")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the constitution and criteria and report problems",
	Long:  "Parses the configured constitution and criteria exactly as a run would.\nExits 78 if either fails to load.",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snap, err := governor.Load(governor.Sources{Constitution: cfg.Constitution, Criteria: cfg.Criteria})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OK: %d rules, %d criteria\nconstitution %s\n", len(snap.Rules), len(snap.Criteria), snap.ConstitutionHash)
	if !validateVerbose {
		return nil
	}

	rules := table.NewWriter()
	rules.SetStyle(table.StyleLight)
	rules.AppendHeader(table.Row{"#", "Rule", "Action", "Effect", "Reason"})
	for i, r := range snap.Rules {
		rules.AppendRow(table.Row{i + 1, r.Name, r.Match.Action, r.Effect, r.Reason})
	}
	fmt.Fprintln(out, rules.Render())

	crit := table.NewWriter()
	crit.SetStyle(table.StyleLight)
	crit.AppendHeader(table.Row{"Criterion", "Source", "Text"})
	for _, c := range snap.Criteria {
		crit.AppendRow(table.Row{c.ID, c.Source, truncate(oneLine(c.Text), 60)})
	}
	fmt.Fprintln(out, crit.Render())
	return nil
}
