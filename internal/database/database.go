package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/wishes"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the backing store and the plugins to register on it.
type Options struct {
	Driver  string
	Path    string
	DSN     string
	Plugins []gorm.Plugin
	Logger  *zap.Logger
}

// Open establishes the connection, registers plugins, and performs schema migrations.
func Open(options Options) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(options.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	var dialector gorm.Dialector
	var location string
	switch driver {
	case DriverSQLite:
		if options.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		dialector = sqlite.Open(withForeignKeys(options.Path))
		location = options.Path
	case DriverPostgres:
		if options.DSN == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		dialector = postgres.Open(options.DSN)
		location = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	for _, plugin := range options.Plugins {
		if err := db.Use(plugin); err != nil {
			return nil, fmt.Errorf("register %s plugin: %w", plugin.Name(), err)
		}
	}

	if err := db.AutoMigrate(&guests.Guest{}, &wishes.Wish{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, driver, options.Logger); err != nil {
		return nil, err
	}

	if options.Logger != nil {
		options.Logger.Info("database initialized",
			zap.String("driver", driver),
			zap.String("location", location))
	}

	return db, nil
}

// withForeignKeys turns on foreign key enforcement for every sqlite connection.
func withForeignKeys(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_pragma=foreign_keys(1)"
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
