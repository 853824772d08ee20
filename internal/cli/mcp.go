package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/config"
	govmcp "github.com/ppiankov/intentgov/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("constitution", "", "Path to the constitution YAML")
	mcpCmd.Flags().String("queue-dir", "", "Directory for pending confirmations")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs intentgov as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes governed tools (refund, send_email, cancel_subscription, process_chargeback)\n" +
		"and governance_check, governance_log, governance_pending.\n" +
		"Confirmations wait for `intentgov approve` or `intentgov reject` from another terminal.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"constitution": config.KeyConstitution,
			"queue-dir":    config.KeyConfirmQueueDir,
		})
	},
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srv, err := govmcp.New(govmcp.Config{
		ConstitutionPath: cfg.Constitution,
		Session:          cfg.Session,
		Alerts:           cfg.Alerts,
		SensitiveKeys:    cfg.SensitiveKeys,
		QueueDir:         cfg.Confirm.QueueDir,
		ConfirmTimeout:   cfg.Confirm.Timeout,
		Notify:           os.Stderr,
		Logger:           log.Logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx)

	// stdout belongs to the protocol
	summary := audit.Summarize(srv.Trail().Entries())
	data, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Fprintf(os.Stderr, "\nSession summary:\n%s\n", data)

	return err
}
