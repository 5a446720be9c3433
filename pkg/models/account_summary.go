package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountSummary is the cached balance projection per (user, currency).
// The transactions table is the source of truth; this row is rebuildable by
// full replay and must always equal the signed sum of completed rows.
type AccountSummary struct {
	ID            uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID        uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_summary_user_currency" validate:"required,uuid"`
	Currency      string          `json:"currency" gorm:"type:varchar(10);uniqueIndex:idx_summary_user_currency" validate:"required,iso4217"`
	Balance       decimal.Decimal `json:"balance" gorm:"type:decimal(20,2)"`
	TotalSpent    decimal.Decimal `json:"total_spent" gorm:"type:decimal(20,2)"`
	LastPaymentAt *time.Time      `json:"last_payment_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (AccountSummary) TableName() string { return "student_accounts" }
