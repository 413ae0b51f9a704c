package generation

import (
	"github.com/smallbiznis/estatebill/internal/generation/repository"
	"github.com/smallbiznis/estatebill/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
