package rate

import (
	"github.com/smallbiznis/casebill/internal/rate/domain"
	"github.com/smallbiznis/casebill/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) domain.Resolver { return svc }),
)
