package database

import (
	"fmt"
	"log/slog"
	"time"

	config "github.com/anjiri1684/messaging/configs"
	"github.com/anjiri1684/messaging/models"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the store selected by DB_DRIVER and bounds its connection pool.
func ConnectDB(s config.Settings, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch s.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(s.DatabaseURL)
	default:
		dialector = postgres.Open(s.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:            false,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", s.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}
	maxOpen := s.DBMaxOpenConns
	if s.DBDriver == "sqlite" {
		// single writer
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(s.DBMaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(s.DBConnMaxLifetime)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	log.Info("database connected", "driver", s.DBDriver, "max_open_conns", maxOpen)
	return db, nil
}

// gormLogger sends gorm's own output (slow queries, errors) through log.
func gormLogger(log *slog.Logger, level logger.LogLevel) logger.Interface {
	return logger.NewSlogLogger(log.With("component", "gorm"), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

// Migrate creates or updates the conversation schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
	); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenTestDB returns a migrated SQLite database stored in dir.
func OpenTestDB(dir string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dir+"/chat.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormLogger(slog.Default(), logger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
