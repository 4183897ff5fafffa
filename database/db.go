package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tag_manager/config"
	"tag_manager/models"
)

// Connect opens the configured database, retrying failed attempts, and runs
// AutoMigrate when database.auto_migrate is set.
func Connect(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = Open(cfg, log)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msgf("Failed to connect to database (attempt %d/%d)", i+1, maxRetries)
		if i+1 < maxRetries {
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	log.Info().Str("driver", cfg.Driver).Msg("Connected to database successfully")

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info().Msg("Database migration completed")
	}
	return db, nil
}

// Open makes a single connection attempt. Duplicate key errors are translated
// to gorm.ErrDuplicatedKey so callers can detect unique violations portably.
func Open(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "":
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log, cfg.LogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// a single connection keeps in-memory databases and savepoints on one handle
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Ping checks that the underlying connection is alive.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// AutoMigrate creates the bundled tables plus any extra tag tables. Custom
// tag tables share the shape of models.Tag.
func AutoMigrate(db *gorm.DB, extraTagTables ...string) error {
	err := db.AutoMigrate(
		&models.Tag{},
		&models.TaggedItem{},
		&models.Link{},
		&models.LinkTag{},
		&models.TagKeyword{},
		&models.TagRegex{},
	)
	if err != nil {
		return err
	}
	for _, table := range extraTagTables {
		if err := db.Table(table).AutoMigrate(&models.Tag{}); err != nil {
			return fmt.Errorf("migrate tag table %s: %w", table, err)
		}
	}
	return nil
}

type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Info().Str("component", "gorm").Msgf(strings.TrimSpace(format), args...)
}

func newGormLogger(log zerolog.Logger, level string) logger.Interface {
	return logger.New(gormWriter{log: log}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLogLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
