// Package cmd provides the CLI commands for chordex.
package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chordex/chordex/internal/config"
	"github.com/chordex/chordex/internal/logging"
	"github.com/chordex/chordex/pkg/version"
)

// Persistent flags shared by every command.
var (
	configPath string
	debugMode  bool

	cliConfig      config.Config
	loggingCleanup func()
)

// Execute runs the root command with a background context.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd creates the root command for the chordex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chordex",
		Short: "Vector similarity search for guitar chord voicings",
		Long: `Chordex indexes guitar chord voicings as musical-feature embeddings
and serves semantic, hybrid, and similarity queries over them.

Build a cache with 'chordex index', then query it:

  chordex index voicings.yaml
  chordex search "warm jazzy voicing" --limit 5
  chordex similar cmaj7-open-1`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("chordex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRun = teardownRun

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupRun loads the configuration and installs the logger before any
// command body runs.
func setupRun(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cliConfig = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}
