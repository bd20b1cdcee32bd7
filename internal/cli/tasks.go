package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/zalrik/chime/internal/taskfile"
)

var tasksFilter string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks from the task file",
	Long: `List the tasks persisted in the task file.

Filter by name with a glob pattern:
  chime tasks --filter 'backup-*'`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksFilter, "filter", "f", "", "glob pattern to filter task names")

	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var matcher glob.Glob
	if tasksFilter != "" {
		matcher, err = glob.Compile(tasksFilter)
		if err != nil {
			return fmt.Errorf("compiling filter: %w", err)
		}
	}

	tasks, skipped, err := taskfile.Load(cfg.TaskFile.Path)
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d unloadable record(s) skipped\n", skipped)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tNEXT RUN\tRUNS\tFAILURES")

	shown := 0
	for _, t := range tasks {
		if matcher != nil && !matcher.Match(t.Name) {
			continue
		}
		shown++

		nextRun := "-"
		if !t.NextRun().IsZero() {
			nextRun = t.NextRun().Local().Format("2006-01-02 15:04:05")
		}

		fmt.Fprintf(w, "%s\t%s %s\t%t\t%s\t%d\t%d\n",
			t.Name,
			t.Schedule.Kind(), t.Schedule.Value(),
			t.Enabled(),
			nextRun,
			t.RunCount(),
			t.FailCount(),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if shown == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks matched")
	}
	return nil
}
