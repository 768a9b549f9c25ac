package ledger

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/ledger/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module must be listed after the migrations module so the chart is seeded
// into an existing schema.
var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
	fx.Invoke(func(conn *gorm.DB, genID *snowflake.Node, clk clock.Clock) error {
		return service.EnsureChartOfAccounts(context.Background(), conn, genID, clk.Now())
	}),
)
