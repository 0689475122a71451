package infrastructure

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewSQLiteConnection opens an embedded database for local runs. An empty DSN opens a
// private in-memory database. SQLite has a single writer, so the pool holds one
// connection.
func NewSQLiteConnection(cfg DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Info("opened SQLite", zap.String("dsn", dsn))
	return db, nil
}
