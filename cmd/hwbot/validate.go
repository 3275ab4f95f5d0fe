package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/config"
	"hwbot/internal/poller"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the config file (if any) and the environment, validate every field
and print a summary. Tokens are never printed.

Exit codes:
  0 - config is valid
  1 - config is invalid (details on stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := app.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	spec, _ := poller.ParseSchedule(cfg.Poll.Interval)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Endpoint:    %s\n", cfg.Practicum.Endpoint)
	fmt.Fprintf(out, "  Chat:        %d\n", cfg.Telegram.ChatID)
	fmt.Fprintf(out, "  Schedule:    %s\n", spec)
	fmt.Fprintf(out, "  Retry delay: %s\n", cfg.Poll.RetryDelay)
	fmt.Fprintf(out, "  Cursor:      %s (start from %s)\n", cfg.Poll.Cursor, cfg.Poll.StartFrom)
	fmt.Fprintf(out, "  Log level:   %s\n", cfg.Logging.Level)
	if cfg.Logging.File.Enabled {
		fmt.Fprintf(out, "  Log file:    %s (%d MB x %d)\n", cfg.Logging.File.Path, cfg.Logging.File.MaxSizeMB, cfg.Logging.File.MaxBackups)
	}
	return nil
}
