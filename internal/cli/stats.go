package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zalrik/chime/internal/database"
	"github.com/zalrik/chime/internal/history"
)

var statsCmd = &cobra.Command{
	Use:   "stats [task-name]",
	Short: "Show execution statistics",
	Long: `Show aggregated execution statistics from the history database.

With a task name, only that task's statistics are shown. Requires
history to be enabled in the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history.path is not configured")
	}

	db, err := database.Open(&cfg.History)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer db.Close()

	store := history.NewStore(db)
	ctx := context.Background()

	var all []*history.TaskStats
	if len(args) == 1 {
		stats, err := store.Stats(ctx, args[0])
		if err != nil {
			return err
		}
		all = []*history.TaskStats{stats}
	} else {
		all, err = store.AllStats(ctx)
		if err != nil {
			return err
		}
	}

	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tRUNS\tOK\tFAILED\tAVG MS\tMAX MS\tLAST RUN")
	for _, s := range all {
		lastRun := "-"
		if !s.LastRun.IsZero() {
			lastRun = s.LastRun.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t%d\t%s\n",
			s.TaskName, s.TotalRuns, s.Successes, s.Failures, s.AvgDurationMs, s.MaxDurationMs, lastRun)
	}
	return w.Flush()
}
