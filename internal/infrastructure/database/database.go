// Package database opens the postgres connection and applies migrations.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"agentforge/chat-api/internal/domain/retry"
)

// SchemaName is the postgres schema holding every table.
const SchemaName = "chat_api"

// Config holds database configuration
type Config struct {
	DatabaseURL string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    gormlogger.LogLevel
	Retry       retry.Policy
}

// Connect opens the database and pings it, retrying per cfg.Retry.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*gorm.DB, error) {
	log = log.With().Str("component", "database").Logger()

	var db *gorm.DB
	err := retry.Do(ctx, cfg.Retry, func(ctx context.Context, attempt int) error {
		opened, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				TablePrefix:   SchemaName + ".",
				SingularTable: false,
			},
			Logger:         gormlogger.Default.LogMode(cfg.LogLevel),
			TranslateError: true,
		})
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("unable to connect to database")
			return err
		}
		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("database ping failed")
			_ = sqlDB.Close()
			return err
		}
		db = opened
		return nil
	})
	if err != nil {
		log.Error().
			Str("error_code", "5c16fb53-d98c-4fc6-8bb4-9abd3c0b9e88").
			Err(err).
			Msg("unable to connect to database")
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info().Msg("successfully connected to database")
	return db, nil
}

// Ping checks connectivity for readiness probes.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ParseLogLevel maps silent, error, warn and info to gorm log levels.
// Unknown values fall back to warn.
func ParseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
