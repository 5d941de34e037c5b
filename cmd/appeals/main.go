package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"appeals/internal/platform/config"
	"appeals/internal/platform/logger"
)

const programName = "appeals"

// main wires the command tree. Business logic lives in internal packages;
// each command only assembles dependencies from config.
func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Judgment and distribution engine for the appeals board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		outboxCommand(),
		tokenCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
}

// commonRun loads config and builds the process logger.
func commonRun() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(level)
	slog.SetDefault(log)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Info(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		return config.Config{}, nil, fmt.Errorf("set maxprocs: %w", err)
	}
	if cfg.UsesDevKey() {
		log.Warn("using development JWT signing key", "component", programName)
	}
	return cfg, log, nil
}
