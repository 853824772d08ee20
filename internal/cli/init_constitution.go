package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/intentgov/internal/policy"
)

var initConstitutionPath string

func init() {
	rootCmd.AddCommand(initConstitutionCmd)
	initConstitutionCmd.Flags().StringVar(&initConstitutionPath, "path", filepath.Join("constitutions", "default.yaml"), "Where to write the constitution")
}

var initConstitutionCmd = &cobra.Command{
	Use:   "init-constitution",
	Short: "Write the default constitution",
	Long:  "Creates a constitution YAML with the default refund, cancellation, and chargeback rules.\nAn existing file is never overwritten.",
	RunE:  runInitConstitution,
}

func runInitConstitution(cmd *cobra.Command, args []string) error {
	path := initConstitutionPath
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("constitution already exists at %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(policy.DefaultConstitutionYAML()), 0o644); err != nil {
		return fmt.Errorf("failed to write constitution: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
