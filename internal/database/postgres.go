// Package database provides the gorm Postgres connector and schema helpers.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/plannivo/walletd/pkg/models"
)

// NewPostgresDB creates a PostgreSQL connection with pooling configured.
func NewPostgresDB(dsn string, maxOpen, maxIdle, connMaxLife int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if maxOpen == 0 {
		maxOpen = 50
	}
	if maxIdle == 0 {
		maxIdle = 10
	}
	if connMaxLife == 0 {
		connMaxLife = 3600
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLife) * time.Second)
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)

	return db, nil
}

// Migrate creates or updates the wallet schema. The unique index on
// (reference_number, type) is part of the migration; it is the storage-level
// idempotency backstop.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Transaction{},
		&models.AccountSummary{},
		&models.DepositRequest{},
		&models.WithdrawalRequest{},
		&models.PaymentIntent{},
		&models.Refund{},
		&models.BankAccount{},
		&models.PayoutMethod{},
		&models.Booking{},
	)
}
