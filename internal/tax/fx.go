package tax

import (
	"github.com/smallbiznis/studioledger/internal/tax/repository"
	"github.com/smallbiznis/studioledger/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewCalculator),
	fx.Provide(service.NewService),
)
