package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var decisionComment string

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	approveCmd.Flags().StringVarP(&decisionComment, "comment", "m", "", "Comment recorded with the decision")
	rejectCmd.Flags().StringVarP(&decisionComment, "comment", "m", "", "Comment recorded with the decision")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve a pending confirmation",
	Long:  "Releases a tool call held for confirmation. The waiting session runs it once and removes the request.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Approve(args[0], decisionComment); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approved %q\n", args[0])
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <key>",
	Short: "Reject a pending confirmation",
	Long:  "Refuses a tool call held for confirmation. The call is recorded as not performed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Reject(args[0], decisionComment); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected %q\n", args[0])
		return nil
	},
}
