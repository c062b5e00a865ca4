package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jsyadav90/abcd-backend2/internal/config"
	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// Open connects to the configured database and brings the schema up to date.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.DatabaseDSN)
	}

	gormCfg := &gorm.Config{}
	if cfg.Environment != "development" {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	if cfg.NormalizeLegacyPermissions {
		n, err := NormalizeLegacyPermissions(db)
		if err != nil {
			return nil, fmt.Errorf("normalize permissions: %w", err)
		}
		log.Info("legacy permission normalization finished", zap.Int("roles_rewritten", n))
	}

	log.Info("database ready", zap.String("driver", cfg.DatabaseDriver))
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Branch{},
		&models.Role{},
		&models.User{},
		&models.LoginCredential{},
		&models.BranchAssignmentLog{},
		&models.ActivityLog{},
	)
}
