package database

import (
	"fmt"

	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes the relational backend connection.
type Config struct {
	Driver   string
	DSN      string // postgres connection string
	Path     string // sqlite file
	LogLevel string
}

// NewConnection opens the configured database and migrates the inventory tables.
func NewConnection(cfg Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel))}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres, "":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case DriverSQLite:
		// One connection keeps SQLite writers from failing with SQLITE_BUSY.
		db, err = gorm.Open(sqlite.Open(cfg.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormCfg)
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return nil, fmt.Errorf("sqlite handle: %w", dbErr)
			}
			sqlDB.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if err := Migrate(db); err != nil {
		log.Warn().Err(err).Msg("failed to auto-migrate inventory tables")
	}
	return db, nil
}

// Migrate creates or updates the inventory tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ProductRecord{},
		&model.VendorRecord{},
		&model.ReorderRecord{},
		&model.TransactionRecord{},
		&model.MetaEntry{},
	)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "info", "warn":
		return logger.Warn
	default:
		return logger.Error
	}
}
