package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/intentgov/internal/approval"
	"github.com/ppiankov/intentgov/internal/config"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List confirmations waiting for an operator",
	Long:  "Shows every request in the confirmation queue with its status, call, and reason.",
	RunE:  runPending,
}

func openStore() (*approval.Store, error) {
	dir := viper.GetString(config.KeyConfirmQueueDir)
	if dir == "" {
		dir = approval.DefaultDir()
	}
	store, err := approval.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return store, nil
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No pending confirmations.")
		return nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Status", "Call", "Reason", "Created"})
	for _, a := range list {
		t.AppendRow(table.Row{
			a.Key,
			a.Status,
			truncate(a.Action+"("+a.Args.String()+")", 48),
			a.Reason,
			a.CreatedAt.Format("15:04:05"),
		})
	}
	fmt.Fprintln(out, t.Render())
	return nil
}
