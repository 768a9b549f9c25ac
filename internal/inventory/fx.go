package inventory

import (
	"github.com/smallbiznis/vetbill/internal/inventory/repository"
	"github.com/smallbiznis/vetbill/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
