package invoice

import (
	"github.com/smallbiznis/studioledger/internal/invoice/repository"
	"github.com/smallbiznis/studioledger/internal/invoice/service"
	"github.com/smallbiznis/studioledger/internal/tax"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	tax.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
