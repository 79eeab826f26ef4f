package database

import (
	"fmt"

	"github.com/ecolearn/ecolearn-api/internal/config"
	"github.com/ecolearn/ecolearn-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to sqlite or postgres. SQLite gets a single connection so
// in-memory databases stay shared and writers never hit SQLITE_BUSY.
func Open(dbType, dsn string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch dbType {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
	case "sqlite", "":
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dbType == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Connect opens, migrates and optionally seeds the database, exiting on failure.
func Connect(cfg *config.Config, log *zap.Logger) *gorm.DB {
	dsn := cfg.DatabasePath
	if cfg.DBType == "postgres" {
		dsn = cfg.DatabaseURL
	}

	db, err := Open(cfg.DBType, dsn)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := Migrate(db); err != nil {
		log.Fatal("Failed to auto migrate", zap.Error(err))
	}

	if cfg.SeedTasks {
		n, err := SeedTasks(db)
		if err != nil {
			log.Fatal("Failed to seed eco-tasks", zap.Error(err))
		}
		log.Info("Eco-task catalog seeded", zap.Int("tasks", n))
	}

	return db
}
