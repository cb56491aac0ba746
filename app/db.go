package app

import (
	"time"

	"github.com/fiffu/cardnotify/config"
	"github.com/fiffu/cardnotify/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		// Timestamps are compared as text by sqlite, so everything is kept in UTC.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Sugar().Panicw("failed to connect database", "path", cfg.DatabasePath, "err", err)
	}
	log.Sugar().Infow("Database started", "path", cfg.DatabasePath)

	log.Info("Starting migrations")
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Sugar().Panicw("failed to migrate database", "err", err)
	}
	return db
}
