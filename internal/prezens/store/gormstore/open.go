// Package gormstore implements store.Store on gorm for MySQL and PostgreSQL
// deployments. The sqlite backend stays on database/sql; this one exists for
// servers that share an existing relational database.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver string // "mysql" | "postgres"
	DSN    string
	Logger *slog.Logger
	// AutoMigrate creates or alters the tables on open.
	AutoMigrate bool
}

// Dialector picks the gorm dialector for driver. MySQL DSNs are parsed and
// re-emitted so a malformed DSN fails before any connection attempt.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		cfg, err := gomysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		return mysql.New(mysql.Config{DSN: cfg.FormatDSN()}), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
}

func Open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gorm ping: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrate(ctx, db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("gorm automigrate: %w", err)
		}
		cfg.Logger.Info("gorm schema migrated", "driver", cfg.Driver)
	}
	return db, nil
}

func migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&meetingRow{}, &participantRow{}, &recordRow{})
}

// isDuplicate reports unique-key violations from either backend.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}
