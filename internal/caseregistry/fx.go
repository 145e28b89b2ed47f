package caseregistry

import (
	"github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/caseregistry/service"
	"github.com/smallbiznis/casebill/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("caseregistry",
	fx.Provide(repository.ProvideStore[domain.Case]),
	fx.Provide(repository.ProvideStore[domain.Client]),
	fx.Provide(repository.ProvideStore[domain.Worker]),
	fx.Provide(service.NewDirectory),
)
