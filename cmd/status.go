package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yug-minds/livecore/internal/output"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded session transitions",
	Long: `Show the session events recorded by past and current watch runs:
grace entries and exits, invalidations, and their reasons.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum events to show")
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	events, err := s.ListSessionEvents(context.Background(), statusLimit)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		ui.Info("No session events recorded. Run 'livecore watch' to start monitoring.")
		return nil
	}

	table := ui.Table([]string{"Time", "Client", "Phase", "Reason", "Detail"})
	for _, e := range events {
		client := e.ClientID
		if len(client) > 8 {
			client = client[:8]
		}
		table.Append([]string{
			e.At.Local().Format(time.DateTime),
			client,
			output.PhaseColor(string(e.Phase)),
			string(e.Reason),
			e.Detail,
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("%d event(s)", len(events))
	return nil
}
