package invoice

import (
	"github.com/smallbiznis/casebill/internal/invoice/render"
	"github.com/smallbiznis/casebill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewEmailDispatcher),
	fx.Provide(service.NewService),
)
