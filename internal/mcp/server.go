package mcp

import (
	"context"
	"fmt"
	"io"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/approval"
	"github.com/ppiankov/intentgov/internal/audit"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/hook"
	"github.com/ppiankov/intentgov/internal/policy"
	"github.com/ppiankov/intentgov/internal/tools"
)

// Config holds MCP server configuration.
type Config struct {
	ConstitutionPath string
	Session          map[string]any
	Alerts           []alert.AlertConfig
	SensitiveKeys    []string
	// QueueDir holds pending confirmations. Defaults to approval.DefaultDir().
	QueueDir       string
	ConfirmTimeout time.Duration
	// Notify receives approve/reject hints. Never stdout: stdio carries the protocol.
	Notify io.Writer
	Logger zerolog.Logger
}

// Server wraps the MCP SDK server. Every domain tool call passes the hook
// dispatcher; confirmations are resolved out of band through the file queue.
// stopAlerts abandons in-flight escalations on shutdown.
type Server struct {
	mcpServer  *mcpsdk.Server
	engine     *policy.Engine
	hooks      *hook.Dispatcher
	approvals  *approval.Store
	alerts     *alert.Dispatcher
	tools      *tools.Registry
	stopAlerts context.CancelFunc
	sessionID  string
	log        zerolog.Logger
}

// New creates an MCP server with the loaded constitution and the simulated tools.
func New(cfg Config) (*Server, error) {
	rules, hash, err := policy.LoadFileWithHash(cfg.ConstitutionPath)
	if err != nil {
		return nil, err
	}

	dir := cfg.QueueDir
	if dir == "" {
		dir = approval.DefaultDir()
	}
	store, err := approval.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval store: %w", err)
	}
	// Pending files from an earlier session can never be answered.
	if err := store.Cleanup(); err != nil {
		return nil, fmt.Errorf("failed to clear approval queue: %w", err)
	}

	logger := cfg.Logger.With().Str("component", "mcp").Logger()
	sessionID := xid.New().String()
	alerts := alert.NewDispatcher(cfg.Alerts, cfg.Logger)
	alertCtx, stopAlerts := context.WithCancel(context.Background())
	engine := policy.NewEngine(rules, cfg.Session)

	var provider confirm.DecisionProvider = confirm.NewQueue(store, cfg.Notify, cfg.Logger)
	provider = confirm.WithTimeout(provider, cfg.ConfirmTimeout)

	s := &Server{
		engine: engine,
		hooks: hook.New(engine, confirm.NewGate(provider, cfg.Logger), audit.NewTrail(), hook.Options{
			RunID:            1,
			SessionID:        sessionID,
			Intent:           "mcp session",
			ConstitutionHash: hash,
			Alerts:           alerts,
			AlertContext:     alertCtx,
			SensitiveKeys:    cfg.SensitiveKeys,
			Logger:           cfg.Logger,
		}),
		approvals:  store,
		alerts:     alerts,
		tools:      tools.Default(),
		stopAlerts: stopAlerts,
		sessionID:  sessionID,
		log:        logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "intentgov",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run serves on stdio. Blocks until ctx is cancelled or the client leaves.
// Escalations still in flight are awaited when the client leaves and
// abandoned when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("session_id", s.sessionID).Msg("mcp server running on stdio")
	unhook := context.AfterFunc(ctx, s.stopAlerts)
	defer unhook()

	err := s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
	s.alerts.Wait()
	s.stopAlerts()
	return err
}

// Trail returns the session's tool-call trail.
func (s *Server) Trail() *audit.Trail {
	return s.hooks.Trail()
}

// registerTools adds the governed domain tools and the read-only governance tools.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "refund",
		Description: describe(s.tools, "refund"),
	}, s.handleRefund)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "send_email",
		Description: describe(s.tools, "send_email"),
	}, s.handleSendEmail)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cancel_subscription",
		Description: describe(s.tools, "cancel_subscription"),
	}, s.handleCancel)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "process_chargeback",
		Description: describe(s.tools, "process_chargeback"),
	}, s.handleChargeback)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governance_check",
		Description: "Report the verdict a tool call would receive, without executing or recording it.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governance_log",
		Description: "Return this session's tool-call log with verdicts, decisions, and hash chain.",
	}, s.handleLog)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governance_pending",
		Description: "List tool calls waiting for an operator decision.",
	}, s.handlePending)
}

func describe(reg *tools.Registry, name string) string {
	t, _ := reg.Get(name)
	return t.Description + " Governed: the call may be denied or held for operator confirmation."
}
