// Package main is the entry point for the hwbot CLI.
//
// Usage:
//
//	hwbot run -c hwbot.yaml        # poll and notify until stopped
//	hwbot check --from 0           # run one cycle and print the verdict
//	hwbot validate -c hwbot.yaml   # validate configuration
//	hwbot version                  # show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hwbot/internal/config"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hwbot",
	Short: "Forward homework review verdicts to Telegram",
	Long: `hwbot polls the homework statuses API and sends a message to a Telegram
chat when the review status of the latest homework changes.

Credentials come from the environment (a .env file is loaded if present):
  PRAKTIKUM_TOKEN   OAuth token for the homework API
  TELEGRAM_TOKEN    bot token
  TELEGRAM_CHAT_ID  chat that receives the verdicts

A YAML or JSON config file is optional; see "hwbot validate".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return config.LoadDotEnv(envFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hwbot %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML or JSON config file (optional)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(versionCmd)
}
