// Package cmd defines the movebot command-line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/movecult/movebot/internal/app"
	"github.com/movecult/movebot/internal/config"
	"github.com/movecult/movebot/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "movebot",
	Short: "Movement Labs documentation assistant and social bot",
	Long: `movebot answers Movement Labs documentation questions over Telegram
using retrieval-augmented generation, and runs autonomous social posting
driven by community trends.

Running movebot with no subcommand starts the bot.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBot(cmd.Context())
	},
}

// Execute runs the root command with signal-driven cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// setup loads configuration and builds the application.
func setup(ctx context.Context) (*app.App, *slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func runBot(ctx context.Context) error {
	a, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown cleanup", "error", err)
		}
	}()

	logger.Info("movebot starting")
	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("movebot stopped")
	return nil
}
