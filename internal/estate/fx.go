package estate

import (
	"github.com/smallbiznis/estatebill/internal/estate/repository"
	"github.com/smallbiznis/estatebill/internal/estate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("estate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
