// Package cmd provides the CLI commands for clinrag.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clinrag/clinrag/internal/config"
	"github.com/clinrag/clinrag/internal/logging"
	"github.com/clinrag/clinrag/pkg/version"
)

// Persistent flags shared by every command.
var (
	flagDataDir  string
	flagLogLevel string
	flagJSONLogs bool
)

// NewRootCmd creates the root command for the clinrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinrag",
		Short: "Hybrid retrieval engine over a medical reference corpus",
		Long: `clinrag answers clinical questions over a chunked medical reference
by fusing exact dense retrieval with BM25 keyword retrieval.

Typical workflow:
  clinrag index --corpus data/corpus.json
  clinrag search "risk factors for hypertension"
  clinrag ask "How is heart failure managed?"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("clinrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "Emit JSON logs even on a terminal")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// .env is optional; missing is fine
		_ = godotenv.Load()
		return nil
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration for the current directory and applies
// CLI flag overrides, then configures logging.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	if flagDataDir != "" {
		cfg.Data.Dir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logging.SetupDefault(logging.Config{
		Level:     cfg.LogLevel,
		ForceJSON: flagJSONLogs,
	})
	return cfg, nil
}
