// Package cli implements the chime command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zalrik/chime/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chime",
	Short: "A lightweight task scheduler",
	Long: `Chime schedules recurring tasks, from shell scripts to anything a
cron expression can describe:

  - Interval ("every 5m") and cron schedules
  - Automatic retries with exponential backoff
  - Subprocess execution with timeouts and optional sandboxing
  - YAML/JSON task files with hot reload
  - SQLite-backed execution history and statistics

Start the scheduler:
  chime run

Check a configuration file:
  chime validate`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./chime.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig resolves the effective configuration. Missing config
// files fall back to defaults; invalid ones are an error.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load(config.LoadOptions{})
}

// setupLogging configures zerolog based on verbosity and environment.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// applyLogging reapplies logging settings from a loaded config. The
// --verbose flag takes precedence over the configured level.
func applyLogging(cfg *config.LoggingConfig) {
	if !verbose {
		if level, err := zerolog.ParseLevel(cfg.Level); err == nil && cfg.Level != "" {
			zerolog.SetGlobalLevel(level)
		}
	}
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("chime version %s", "0.1.0-dev")
}
