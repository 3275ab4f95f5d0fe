package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
)

const stopTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll for review status changes until interrupted",
	Long: `Start the poll loop. Each cycle asks the API for statuses changed since
the last successful cycle and sends the verdict for the latest homework.
Failed cycles are retried after poll.retry_delay.

SIGINT and SIGTERM stop the loop gracefully. Changes to the config file are
picked up without a restart where possible.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		return err
	}
	if errors.Is(stopErr, context.DeadlineExceeded) {
		return stopErr
	}
	return nil
}
