package invoice

import (
	clientdomain "github.com/smallbiznis/vetbill/internal/client/domain"
	fiscaldomain "github.com/smallbiznis/vetbill/internal/fiscal/domain"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/internal/invoice/repository"
	"github.com/smallbiznis/vetbill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		func(svc clientdomain.Service) invoicedomain.ClientDirectory { return svc },
		func(svc inventorydomain.Service) invoicedomain.InventoryLedger { return svc },
		func(issuer fiscaldomain.Issuer) invoicedomain.ReceiptIssuer { return issuer },
	),
	fx.Provide(service.NewService),
)
