package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/vetbill/internal/clock"
	receivablesdomain "github.com/smallbiznis/vetbill/internal/receivables/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newReceivablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receivables",
		Short: "Print the receivables aging report as JSON",
		Example: `  # Aging as of now
  vetbill receivables

  # Aging at the end of a given day
  vetbill receivables --as-of 2026-03-31`,
		RunE: runReceivables,
	}
	cmd.Flags().String("as-of", "", "Report date (format: YYYY-MM-DD, default: now)")
	return cmd
}

func runReceivables(cmd *cobra.Command, args []string) error {
	asOfFlag, _ := cmd.Flags().GetString("as-of")

	var asOf *time.Time
	if value := strings.TrimSpace(asOfFlag); value != "" {
		parsed, err := time.Parse("2006-01-02", value)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", value, err)
		}
		endOfDay := parsed.Add(24*time.Hour - time.Nanosecond)
		asOf = &endOfDay
	}

	var report receivablesdomain.Report
	app := fx.New(
		coreModules(),
		billingModules(),
		fx.NopLogger,
		fx.Invoke(func(lc fx.Lifecycle, svc receivablesdomain.Service, clk clock.Clock) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					now := clk.Now()
					if asOf != nil {
						now = *asOf
					}
					var err error
					report, err = svc.Compute(ctx, now)
					return err
				},
			})
		}),
	)
	if err := runOnce(cmd.Context(), app); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
