package migration

import (
	"github.com/smallbiznis/casebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies pending migrations on startup when AUTO_MIGRATE is set.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.AutoMigrate {
			return nil
		}
		if name := conn.Dialector.Name(); name != "postgres" {
			log.Named("migration").Warn("schema migrations target postgres, skipping", zap.String("dialect", name))
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Named("migration").Info("schema migrations applied")
		return nil
	}),
)
