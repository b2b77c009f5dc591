package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Alp4ka/relaypager/internal/config"
)

// Dialector returns the gorm dialector of the configured driver.
func Dialector(cfg config.Database) (gorm.Dialector, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(dsn), nil
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER '%s'", cfg.Driver)
	}
}

// Open connects to the configured database. SQLite gets a single connection,
// the other drivers a small pool.
func Open(cfg config.Database) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("cannot access connection pool: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// Pooled reports whether the driver serves concurrent queries on separate
// connections.
func Pooled(cfg config.Database) bool {
	return cfg.Driver != config.DriverSQLite
}
