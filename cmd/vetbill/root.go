package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/audit"
	"github.com/smallbiznis/vetbill/internal/client"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/config"
	"github.com/smallbiznis/vetbill/internal/fiscal"
	"github.com/smallbiznis/vetbill/internal/inventory"
	"github.com/smallbiznis/vetbill/internal/invoice"
	"github.com/smallbiznis/vetbill/internal/ledger"
	"github.com/smallbiznis/vetbill/internal/lock"
	"github.com/smallbiznis/vetbill/internal/migration"
	"github.com/smallbiznis/vetbill/internal/observability"
	"github.com/smallbiznis/vetbill/internal/receivables"
	"github.com/smallbiznis/vetbill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vetbill",
		Short: "Invoice and billing engine for veterinary clinics",
		Long: `vetbill runs the clinic billing API: invoice drafts, approval with stock
deduction, payments, refunds, fiscal receipts and receivables aging.

Configuration is read from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newReceivablesCmd())
	return root
}

// coreModules wires configuration, logging, storage and the schema.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// billingModules wires the domain services. The ledger seeds its chart on
// start, so it must follow migration.Module.
func billingModules() fx.Option {
	return fx.Options(
		lock.Module,
		audit.Module,
		client.Module,
		inventory.Module,
		fiscal.Module,
		ledger.Module,
		invoice.Module,
		receivables.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
