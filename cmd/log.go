package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yug-minds/livecore/internal/output"
)

var (
	logConsumer string
	logLimit    int
	logKeep     int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recorded refresh decisions",
	Long: `Show the refresh log: every trigger a consumer received and the
scheduling decision taken for it (executed, throttled, skipped, failed).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return logShowRun()
	},
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old refresh log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return logPruneRun()
	},
}

func init() {
	logCmd.Flags().StringVar(&logConsumer, "consumer", "", "Filter by consumer ID")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum entries to show")
	logPruneCmd.Flags().IntVar(&logKeep, "keep", 1000, "Number of newest entries to keep")
	logCmd.AddCommand(logPruneCmd)
	rootCmd.AddCommand(logCmd)
}

func logShowRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	entries, err := s.ListRefreshLog(context.Background(), logConsumer, logLimit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		ui.Info("No refresh decisions recorded yet.")
		return nil
	}

	table := ui.Table([]string{"Time", "Consumer", "Trigger", "Outcome", "Error"})
	for _, e := range entries {
		table.Append([]string{
			e.At.Local().Format(time.DateTime),
			e.ConsumerID,
			string(e.Trigger),
			output.OutcomeColor(string(e.Outcome)),
			e.Error,
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("%d entries", len(entries))
	return nil
}

func logPruneRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	deleted, err := s.PruneRefreshLog(context.Background(), logKeep)
	if err != nil {
		return err
	}

	ui.Success("Pruned %d entries, kept the newest %d", deleted, logKeep)
	return nil
}
