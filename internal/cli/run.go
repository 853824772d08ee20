package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/agent"
	"github.com/ppiankov/intentgov/internal/alert"
	"github.com/ppiankov/intentgov/internal/config"
	"github.com/ppiankov/intentgov/internal/confirm"
	"github.com/ppiankov/intentgov/internal/governor"
	"github.com/ppiankov/intentgov/internal/judge"
	"github.com/ppiankov/intentgov/internal/llm"
	"github.com/ppiankov/intentgov/internal/tools"
)

var (
	runJSON           bool
	runNonInteractive bool
	runReports        string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("constitution", "", "Path to the constitution YAML")
	runCmd.Flags().String("criteria", "", "Criteria directory or file")
	runCmd.Flags().String("provider", "", "Model provider ("+strings.Join(llm.ProviderNames(), ", ")+")")
	runCmd.Flags().String("model", "", "Agent model (default: provider's default)")
	runCmd.Flags().Bool("watch", false, "Reload constitution and criteria when they change")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print each report as JSON")
	runCmd.Flags().StringVar(&runReports, "reports", "", "Append every report as JSON to this file (for audit and simulate)")
	runCmd.Flags().BoolVar(&runNonInteractive, "non-interactive", false, "Reject every confirmation instead of prompting")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Govern intents typed at the prompt",
	Long: "Reads one intent per line, runs the agent under governance, and prints the report.\n" +
		"Type quit (or send EOF) to exit.",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			"constitution": config.KeyConstitution,
			"criteria":     config.KeyCriteria,
			"provider":     config.KeyProvider,
			"model":        config.KeyModel,
			"watch":        config.KeyWatch,
		})
	},
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chatCfg, err := cfg.Chat()
	if err != nil {
		return err
	}
	src := governor.Sources{Constitution: cfg.Constitution, Criteria: cfg.Criteria}
	snap, err := governor.Load(src)
	if err != nil {
		return err
	}

	logger := log.Logger
	out := cmd.OutOrStdout()
	lines := confirm.NewLines(cmd.InOrStdin())
	client := llm.New(chatCfg)

	backend, err := judgeBackend(cfg, chatCfg, client)
	if err != nil {
		return err
	}

	var provider confirm.DecisionProvider = confirm.NewTerminal(lines, out)
	if runNonInteractive {
		provider = confirm.RejectAll("non-interactive session")
	}
	provider = confirm.WithTimeout(provider, cfg.Confirm.Timeout)

	alerts := alert.NewDispatcher(cfg.Alerts, logger)

	sessionID := xid.New().String()
	runtime := agent.NewChatAgent(client, tools.Default(), agent.ChatConfig{
		MaxSteps:  cfg.Agent.MaxSteps,
		Retriever: agent.NewRetriever(cfg.Agent.BaseIntent, cfg.Agent.Strategies, logger),
		Session:   cfg.Session,
	}, logger)

	gov := governor.New(snap, runtime,
		confirm.NewGate(provider, logger),
		judge.New(backend, judge.Config{Threshold: cfg.Judge.Threshold, Timeout: cfg.Judge.Timeout}, logger),
		governor.Options{
			SessionID:     sessionID,
			Session:       cfg.Session,
			Alerts:        alerts,
			SensitiveKeys: cfg.SensitiveKeys,
			Logger:        logger,
		})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Deliveries finish on quit; an interrupt abandons them.
	defer alerts.Wait()

	if cfg.Watch {
		reloader, err := governor.NewReloader(gov, src, logger)
		if err != nil {
			return err
		}
		go func() { _ = reloader.Run(ctx) }()
	}

	logger.Info().
		Str("session_id", sessionID).
		Str("model", chatCfg.Model).
		Str("judge", cfg.Judge.Backend).
		Int("rules", len(snap.Rules)).
		Int("criteria", len(snap.Criteria)).
		Msg("session started")

	var sink io.Writer
	if runReports != "" {
		f, err := os.OpenFile(runReports, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open reports file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	return repl(ctx, gov, lines, out, sink, logger)
}

// repl governs one intent per line until quit, EOF, or interrupt.
// Reports are also appended to sink when it is non-nil.
func repl(ctx context.Context, gov *governor.Governor, lines *confirm.Lines, out, sink io.Writer, logger zerolog.Logger) error {
	prompt := color.New(color.FgCyan, color.Bold).SprintFunc()
	for {
		fmt.Fprint(out, prompt("intent> "))
		line, err := lines.Next(ctx)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read intent: %w", err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "quit") {
			return nil
		}

		rep, err := gov.Govern(ctx, text)
		if err != nil {
			logger.Warn().Err(err).Msg("run interrupted")
			return nil
		}
		if err := renderReport(out, rep, runJSON); err != nil {
			return err
		}
		if sink != nil {
			if err := json.NewEncoder(sink).Encode(rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
	}
}

// judgeBackend picks the judging capability. The chat backend reuses the
// agent's endpoint, optionally with its own model.
func judgeBackend(cfg *config.Config, chatCfg llm.Config, client *llm.Client) (judge.Backend, error) {
	switch cfg.Judge.Backend {
	case config.JudgeClaude:
		return judge.NewClaudeBackend(cfg.Judge.Model), nil
	case config.JudgeChat:
		if cfg.Judge.Model == "" || cfg.Judge.Model == chatCfg.Model {
			return client, nil
		}
		jc := chatCfg
		jc.Model = cfg.Judge.Model
		return llm.New(jc), nil
	default:
		return nil, fmt.Errorf("unknown judge backend %q", cfg.Judge.Backend)
	}
}
