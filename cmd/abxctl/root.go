package main

import (
	"context"
	"log/slog"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/Guizzs26/abx-sheet-sync/internal/config"
	"github.com/Guizzs26/abx-sheet-sync/pkg/infra"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "abxctl",
	Short:         "abxctl - ICU antibiotic administration records",
	Long:          "abxctl reads and edits the shared antibiotic administration table through the synchronization layer.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newWatchCmd())
}

// withApp loads configuration, builds the application and drains it after fn returns
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog := infra.SetupLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "backend", cfg.Backend, "error", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := app.ShutdownContext(cfg)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("Shutdown was not clean", "error", err)
		}
	}()

	return fn(ctx, a)
}
