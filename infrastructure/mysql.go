package infrastructure

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"recruit-pipeline/domain"
)

// Models lists every table owned by the engine, in migration order.
var Models = []any{
	&domain.PipelineEntry{},
	&domain.ActivityRecord{},
	&domain.InterviewScorecard{},
	&domain.Placement{},
	&domain.OutboxEvent{},
}

func NewMySQLConnection(cfg DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is not set")
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("connected to MySQL", zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	logger.Info("schema migrated", zap.Int("tables", len(Models)))
	return nil
}

// OpenDatabase opens the SQL database selected by cfg.Driver.
func OpenDatabase(cfg DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql", "":
		return NewMySQLConnection(cfg, logger)
	case "sqlite":
		return NewSQLiteConnection(cfg, logger)
	default:
		return nil, fmt.Errorf("database driver %q has no SQL connection", cfg.Driver)
	}
}

// NewStore opens the store selected by cfg.Driver.
func NewStore(cfg DatabaseConfig, logger *zap.Logger) (domain.Store, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on exit")
		return NewMemoryStore(), nil
	}

	db, err := OpenDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	store := NewGormStore(db)
	if cfg.AutoMigrate {
		if err := Migrate(db, logger); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
