package migration

import (
	"github.com/smallbiznis/estatebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run migrates the configured database.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != config.DBTypePostgres {
		log.Info("migration.automigrate", zap.String("db_type", cfg.DBType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("migration.run", zap.String("db_type", cfg.DBType))
	return RunMigrations(sqlDB)
}
