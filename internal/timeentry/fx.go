package timeentry

import (
	"github.com/smallbiznis/casebill/internal/timeentry/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("timeentry",
	fx.Provide(repository.Provide),
)
