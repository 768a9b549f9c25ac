package main

import (
	"context"
	"time"

	"github.com/smallbiznis/vetbill/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed the chart of accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				ledger.Module,
				fx.Invoke(func(log *zap.Logger) {
					log.Info("schema is up to date")
				}),
			)
			return runOnce(cmd.Context(), app)
		},
	}
}

// runOnce starts and immediately stops app so every invoke runs exactly once.
func runOnce(ctx context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}
