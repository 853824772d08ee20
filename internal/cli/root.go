package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/intentgov/internal/config"
	"github.com/ppiankov/intentgov/internal/logging"
	"github.com/ppiankov/intentgov/internal/model"
)

// exitConfig is EX_CONFIG from sysexits.h.
const exitConfig = 78

var configFile string

var rootCmd = &cobra.Command{
	Use:   "intentgov",
	Short: "Governance layer for tool-calling support agents",
	Long: "Every tool call an agent proposes is checked against a constitution before it runs,\n" +
		"sensitive calls wait for a human, and each finished run is judged against criteria.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		used, configErr := config.ReadFile(viper.GetViper(), configFile)
		if err := logging.Init(logging.Options{
			Level:   viper.GetString(config.LogLevelKey),
			Format:  viper.GetString(config.LogFormatKey),
			NoColor: viper.GetBool(config.LogNoColorKey),
		}); err != nil {
			return &model.ConfigError{Source: "flags", Err: err}
		}
		if viper.GetBool(config.LogNoColorKey) {
			color.NoColor = true
		}
		if configErr != nil { // reported after logging is initialized
			return configErr
		}
		if used != "" {
			log.Debug().Msgf("using config file: %s", used)
		}
		return nil
	},
}

// Execute runs the root command. Configuration errors exit with 78, any
// other failure with 1.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(exitConfig)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	// pre-flag logger
	logging.InitDefault()
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (default is .intentgov.yaml in ., $HOME or the user config dir)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(config.LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(config.LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(config.LogNoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// bindFlags binds the named flags of cmd to viper keys. Commands share keys
// (run and mcp both take --constitution), so binding happens for the command
// that actually runs, not in init.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig decodes the merged flags, environment, and config file.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
