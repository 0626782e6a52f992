package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"nucleus/internal/platform/config"
	"nucleus/internal/platform/logger"
)

const programName = "nucleus"

var globalFlags = struct {
	configFile string
	debug      bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Fleet-wide moderation node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(hashKeyCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Log.Level = "debug"
	}
	log := logger.New(cfg.Log).With("component", programName, "node", cfg.Node.ID)
	slog.SetDefault(log)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Info(fmt.Sprintf(format, v...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err)
	}
	return cfg, log, nil
}
