package receivables

import (
	"github.com/smallbiznis/vetbill/internal/receivables/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receivables.service",
	fx.Provide(service.NewService),
)
