package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single poll cycle and print the result",
	Long: `Run one poll cycle against the homework API and print the verdict that
would be sent. Nothing is sent to Telegram unless --send is given.

Example:
  hwbot check --from 0          # everything since the epoch
  hwbot check --from 0 --send   # and deliver it`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Int64("from", -1, "from_date in Unix seconds (default: poll.start_from)")
	checkCmd.Flags().Bool("send", false, "send the verdict to the configured chat")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	from, _ := cmd.Flags().GetInt64("from")
	send, _ := cmd.Flags().GetBool("send")

	opts := []app.Option{app.WithConsoleLogging(false)}
	if !send {
		opts = append(opts, app.WithOfflineTelegram())
	}
	a, err := app.NewApp(cfgPath, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Stop(context.Background(), app.StopAppStop) }()

	res, err := a.Check(cmd.Context(), app.CheckOptions{From: from, Send: send})
	if err != nil {
		return err
	}
	printResult(cmd, res, send)
	if send {
		printDelivered(cmd, a.Notifier())
	}
	if res.Err != nil {
		return fmt.Errorf("check failed: %w", res.Err)
	}
	return nil
}

func printResult(cmd *cobra.Command, res poller.Result, sent bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cycle:     %s\n", res.CycleID)
	fmt.Fprintf(out, "From date: %d\n", res.From)
	fmt.Fprintf(out, "Outcome:   %s\n", res.Outcome)
	if res.Homework != nil {
		fmt.Fprintf(out, "Homework:  %s (%s)\n", res.Homework.Name, res.Homework.Status)
	}
	if res.Err != nil {
		fmt.Fprintf(out, "Error:     [%s] %v\n", res.Kind, res.Err)
		return
	}
	if res.Message != "" {
		if sent {
			fmt.Fprintln(out, "Sent:")
		} else {
			fmt.Fprintln(out, "Would send:")
		}
		fmt.Fprintln(out, res.Message)
	}
	fmt.Fprintf(out, "Next from: %d\n", res.Watermark)
}

// printDelivered lists what the notifier actually sent during this run.
func printDelivered(cmd *cobra.Command, n *notifier.Notifier) {
	hist := n.History()
	if len(hist) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Delivered to chat %d:\n", n.Target().ChatID)
	for _, h := range hist {
		fmt.Fprintf(out, "  message %d at %s\n", h.MessageID, h.At.UTC().Format(time.RFC3339))
	}
}
