package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"danny/nn/internal/store"
)

var (
	runsLimit int
	runsJSON  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded nn runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if runsJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Println(formatRun(r))
		}
		return nil
	},
}

func formatRun(r store.Run) string {
	started := time.UnixMilli(r.StartedAt)
	took := "-"
	if r.FinishedAt != nil {
		took = formatDuration(time.UnixMilli(*r.FinishedAt).Sub(started))
	}
	line := fmt.Sprintf("%s  %s  %-7s %-6s cap=%d workers=%d subjects=%d pairs=%d  %s",
		truncID(r.ID), started.Format("2006-01-02 15:04"), r.Status, r.Mode, r.UserCap, r.Workers, r.Subjects, r.Pairs, took)
	if r.Error != nil {
		line += "  error: " + truncateMiddle(*r.Error, 60)
	}
	return line
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(runsCmd)
}
