package billingprofile

import (
	"github.com/smallbiznis/estatebill/internal/billingprofile/repository"
	"github.com/smallbiznis/estatebill/internal/billingprofile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingprofile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewService),
)
