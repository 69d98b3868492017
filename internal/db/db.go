package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the configured database. TranslateError is on so that
// unique and foreign key violations surface as gorm sentinel errors
// regardless of dialect. Sqlite connections get foreign key enforcement
// enabled per connection; the substrate defaults to off.
func Connect(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch driver {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(withForeignKeys(dsn)), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, errors.Errorf("db: unsupported driver %q", driver)
	}
}

// withForeignKeys appends the _pragma option so every pooled connection
// enforces foreign keys, not just the one a PRAGMA statement ran on.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}
