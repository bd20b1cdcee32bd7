package cli

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zalrik/chime/internal/config"
	"github.com/zalrik/chime/internal/database"
	"github.com/zalrik/chime/internal/history"
	"github.com/zalrik/chime/internal/metrics"
	"github.com/zalrik/chime/internal/notify"
	"github.com/zalrik/chime/internal/osched"
	"github.com/zalrik/chime/internal/scheduler"
	"github.com/zalrik/chime/internal/task"
	"github.com/zalrik/chime/internal/taskfile"
)

var (
	runTaskFile string
	runNoWatch  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler",
	Long: `Start the chime scheduler in the foreground.

The scheduler will:
  - Register tasks declared in the configuration
  - Load the task file, if one exists
  - Watch the task file for changes (disable with --no-watch)
  - Record execution history when enabled
  - Serve Prometheus metrics when enabled

It runs until interrupted; on SIGINT or SIGTERM it saves the task file
and shuts down.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTaskFile, "task-file", "", "task file path (default from config)")
	runCmd.Flags().BoolVar(&runNoWatch, "no-watch", false, "disable task file watching")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogging(&cfg.Logging)

	if cmd.Flags().Changed("task-file") {
		cfg.TaskFile.Path = runTaskFile
	}
	if runNoWatch {
		cfg.TaskFile.Watch = false
	}

	opts := []scheduler.Option{
		scheduler.WithNotifier(&notify.LogNotifier{}),
	}

	var recorder *history.Recorder
	if cfg.History.Enabled {
		db, err := database.Open(&cfg.History)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open history database")
		}
		defer db.Close()

		recorder = history.NewRecorder(db, cfg.History.Retention)
		recorder.Start()
		defer recorder.Stop()

		opts = append(opts, scheduler.WithRecorder(recorder))
	}

	if cfg.Scheduler.UseOSScheduler {
		adapter, err := osched.NewCrontab()
		if err != nil {
			log.Warn().Err(err).Msg("OS scheduler not available")
		} else {
			opts = append(opts, scheduler.WithOSAdapter(adapter))
		}
	}

	sched := scheduler.New(cfg.Scheduler, opts...)

	for _, tc := range cfg.Tasks {
		if _, err := sched.Add(taskConfigFromDecl(tc)); err != nil {
			log.Error().Err(err).Str("task", tc.Name).Msg("Failed to add configured task")
		}
	}

	if _, err := os.Stat(cfg.TaskFile.Path); err == nil {
		if _, err := sched.LoadTasks(cfg.TaskFile.Path, false); err != nil {
			log.Error().Err(err).Str("path", cfg.TaskFile.Path).Msg("Failed to load task file")
		}
	}

	if cfg.TaskFile.Watch {
		watcher, err := taskfile.NewWatcher(cfg.TaskFile.Path, func(path string) {
			if _, err := sched.LoadTasks(path, false); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to reload task file")
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Task file watching unavailable")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Task file watching unavailable")
		} else {
			defer watcher.Stop()
		}
	}

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		if err := sched.SaveTasks(cfg.TaskFile.Path); err != nil {
			log.Error().Err(err).Msg("Failed to save tasks on shutdown")
		}
		sched.Stop()
	}()

	sched.Start(true)
	return nil
}

func taskConfigFromDecl(tc config.TaskConfig) task.Config {
	return task.Config{
		Name:          tc.Name,
		Script:        tc.Script,
		Every:         tc.Every,
		Cron:          tc.Cron,
		Retries:       tc.Retries,
		RetryDelay:    tc.RetryDelay,
		Timeout:       tc.Timeout,
		Notify:        tc.Notify,
		Sandbox:       tc.Sandbox,
		MaxMemoryMB:   tc.MaxMemoryMB,
		MaxCPUSeconds: tc.MaxCPUSeconds,
	}
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}
