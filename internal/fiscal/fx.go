package fiscal

import (
	"github.com/smallbiznis/vetbill/internal/fiscal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fiscal.issuer",
	fx.Provide(service.NewIssuer),
)
