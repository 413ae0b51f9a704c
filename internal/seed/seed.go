package seed

import (
	"context"
	"errors"

	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

// Run grants the configured bootstrap admins at startup.
func Run(lc fx.Lifecycle, cfg config.Config, authz authorization.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return EnsureAdmins(ctx, authz, cfg.BootstrapAdmins, log)
		},
	})
}

// EnsureAdmins assigns role:admin to each subject. Assignment is idempotent,
// so this is safe on every boot.
func EnsureAdmins(ctx context.Context, authz authorization.Service, subjects []string, log *zap.Logger) error {
	if authz == nil {
		return errors.New("seed authorization service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	for _, subject := range subjects {
		if err := authz.AssignRole(ctx, subject, authorization.RoleAdmin); err != nil {
			return err
		}
		log.Info("seed.admin_granted", zap.String("subject", subject))
	}
	return nil
}
