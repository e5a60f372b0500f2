package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 5

// Connect opens the configured database, waits for it to be ready and syncs the schema.
func Connect(cfg config.Database, zl *zap.Logger) (*gorm.DB, error) {
	if zl == nil {
		zl = zap.NewNop()
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "[GORM] ", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	// Connect with GORM (Wait for DB to be ready)
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(dialector(cfg), gormCfg)
		if err == nil {
			break
		}
		zl.Warn("database not ready, retrying",
			zap.String("driver", cfg.Driver), zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s after %d attempts: %w", cfg.Driver, connectAttempts, err)
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		// One writer at a time; transactions queue on the pool instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	zl.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate syncs the schema for every persisted model.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Employee{},
		&models.StockItem{},
		&models.Sale{},
		&models.LedgerEntry{},
		&models.StockMovement{},
		&models.Report{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// SQLXDriverName maps the configured driver to the name sqlx uses for bind vars.
func SQLXDriverName(driver string) string {
	switch driver {
	case "postgres":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	default:
		return "mysql"
	}
}

func dialector(cfg config.Database) gorm.Dialector {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN)
	case "sqlite":
		return sqlite.Open(cfg.DSN)
	default:
		return mysql.Open(cfg.DSN)
	}
}

func logLevel(level string) logger.LogLevel {
	switch level {
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
