package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fatflowers/subscriptions/internal/models"
	cfgpkg "github.com/fatflowers/subscriptions/pkg/config"
	gormzap "github.com/fatflowers/subscriptions/pkg/gormlog"
)

// Enforces at most one active subscription per user at the storage layer.
const createSingleActiveIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uniq_subscription_active_user
	ON subscription (user_id) WHERE status = 'active'`

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	return Open(cfg.Database.DSN, l)
}

// Open connects to postgres with gorm errors translated (ErrDuplicatedKey) and zap logging.
func Open(dsn string, l *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormzap.New(l),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	l.Infow("connected to postgres via DSN")
	return db, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// AutoMigrate runs GORM migrations on startup
func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Plan{},
		&models.User{},
		&models.Subscription{},
		&models.SubscriptionLog{},
	); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	if err := db.Exec(createSingleActiveIndex).Error; err != nil {
		l.Errorf("create single active index failed: %v", err)
		return fmt.Errorf("create single active index: %w", err)
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing postgres connection pool")
			return sqlDB.Close()
		},
	})
}
