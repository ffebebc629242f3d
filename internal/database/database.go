// Package database opens and migrates the appforge database.
package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/appforge-dev/appforge/internal/model"
)

// DB wraps the gorm handle.
type DB struct {
	*gorm.DB
}

// Open connects to the database selected by driver ("sqlite" or "postgres")
// and runs migrations.
func Open(driver, dsn string) (*DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&model.Project{}, &model.SandboxRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &DB{DB: db}, nil
}
