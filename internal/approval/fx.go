package approval

import (
	"github.com/smallbiznis/estatebill/internal/approval/repository"
	"github.com/smallbiznis/estatebill/internal/approval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("approval.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
