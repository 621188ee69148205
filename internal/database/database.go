package database

import (
	"errors"
	"fmt"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/logger"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DemoUserID is the fixed id of the seeded demo account.
const DemoUserID = "ab15bf54-8b43-4891-a5ad-65c1c8fd54fe"

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg config.Database, brokerCfg config.Broker, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite allows a single writer; one connection keeps transactions from
	// tripping over SQLITE_BUSY and serializes balance updates.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	if cfg.SeedDemoUser {
		if err := SeedDemoUser(db, decimal.NewFromFloat(brokerCfg.DemoCash)); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// AutoMigrate creates or updates the schema. Existing rows are never dropped.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Position{},
		&models.Trade{},
		&models.Call{},
		&models.CallLog{},
		&models.CallSchedule{},
		&models.WatchlistItem{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedDemoUser makes sure the demo account exists.
func SeedDemoUser(db *gorm.DB, cash decimal.Decimal) error {
	var user models.User
	err := db.First(&user, "id = ?", DemoUserID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up demo user: %w", err)
	}

	user = models.User{
		ID:          DemoUserID,
		Name:        "Demo User",
		Email:       "demo@example.com",
		CashBalance: cash,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("failed to seed demo user: %w", err)
	}
	return nil
}
