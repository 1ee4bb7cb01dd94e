// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vendora/backend/internal/config"
	"github.com/vendora/backend/internal/models"
)

// Initialize opens the PostgreSQL connection and configures the pool.
func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogLevel := logger.Silent
	switch cfg.LogLevel {
	case "info":
		gormLogLevel = logger.Info
	case "warn":
		gormLogLevel = logger.Warn
	case "error":
		gormLogLevel = logger.Error
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Database,
	}).Info("Database connected")

	return db, nil
}

// RunMigrations applies the schema. gen_random_uuid needs pgcrypto on older
// PostgreSQL versions; 13+ ships it built in.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		logrus.WithError(err).Warn("Could not ensure pgcrypto extension")
	}

	if err := db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.DownloadToken{},
		&models.License{},
		&models.Activation{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Composite index backing the per-IP piracy lookback query.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_downloads_by_ip
		ON audit_logs (client_ip, occurred_at)
		WHERE event_type = 'download' AND success = true`).Error; err != nil {
		logrus.WithError(err).Warn("Could not create audit lookback index")
	}

	logrus.Info("Database migrations completed")
	return nil
}

// Close shuts the underlying connection pool down.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
