package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/minutes-cli/internal/config"
)

var cfg *config.Config

var (
	flagInput  string
	flagOutput string
	flagAPIKey string
)

var rootCmd = &cobra.Command{
	Use:   "minutes-cli",
	Short: "Annotate central bank minutes with the main reason for each policy decision",
	Long: `Reads a table of dated meeting minutes, asks an LLM for the main reason
behind each monetary policy decision, and writes one result row per input row.

A row that fails is recorded in the error column and the run continues.

Examples:
  # Default paths from config.yaml (data/minutes_tbl.csv -> data/results.csv)
  OPENAI_API_KEY=sk-... minutes-cli

  # Anthropic with explicit paths
  MINUTES_PROVIDER=anthropic MINUTES_PROMPT_MODEL=claude-haiku-4-5-20251001 \
    minutes-cli --input minutes.xlsx --output results.csv

  # Offline dry run, no API key needed
  MINUTES_PROVIDER=stub minutes-cli --output /tmp/results.csv`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyFlags(cfg)
		return runAnnotate(ctx, cfg, cmd.OutOrStdout())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagInput, "input", "", "input CSV or XLSX path (overrides input.path)")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "output CSV or XLSX path (overrides output.path)")
	rootCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key for the selected provider (overrides env and config)")
}

// applyFlags layers command-line overrides on top of the loaded config.
func applyFlags(c *config.Config) {
	if flagInput != "" {
		c.Input.Path = flagInput
	}
	if flagOutput != "" {
		c.Output.Path = flagOutput
	}
	if flagAPIKey != "" {
		c.SetCredential(flagAPIKey)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
