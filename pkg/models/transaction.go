package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types. The ledger is append-only; every monetary movement in
// the system is one of these.
const (
	TxTypePayment         = "payment"
	TxTypeRefund          = "refund"
	TxTypeIyzicoRefund    = "iyzico_refund"
	TxTypeManualCredit    = "manual_credit"
	TxTypeManualDebit     = "manual_debit"
	TxTypeDeposit         = "deposit"
	TxTypeWithdrawal      = "withdrawal"
	TxTypePackagePurchase = "package_purchase"
	TxTypeBookingCharge   = "booking_charge"
)

// Transaction directions.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is an append-only ledger row. Amount is signed in major units:
// credits positive, debits negative, always rounded to two decimal places.
// At most one row exists per (reference_number, type) pair; that constraint
// is what makes webhook retries safe.
type Transaction struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:uuid;index:idx_tx_user_currency" validate:"required,uuid"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)" validate:"required"`
	Currency        string          `json:"currency" gorm:"type:varchar(10);index:idx_tx_user_currency" validate:"required,iso4217"`
	Type            string          `json:"type" gorm:"type:varchar(40);uniqueIndex:idx_tx_reference_type" validate:"required,oneof=payment refund iyzico_refund manual_credit manual_debit deposit withdrawal package_purchase booking_charge"`
	Direction       string          `json:"direction" gorm:"type:varchar(10)" validate:"required,oneof=credit debit"`
	Status          string          `json:"status" gorm:"type:varchar(20);index" validate:"required,oneof=pending completed failed"`
	Description     string          `json:"description" gorm:"type:varchar(500)" validate:"omitempty,max=500"`
	ReferenceNumber *string         `json:"reference_number,omitempty" gorm:"type:varchar(255);uniqueIndex:idx_tx_reference_type" validate:"omitempty,max=255"`
	Metadata        Metadata        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedBy       *uuid.UUID      `json:"created_by,omitempty" gorm:"type:uuid" validate:"omitempty,uuid"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName keeps the ledger table name stable across model renames.
func (Transaction) TableName() string { return "transactions" }

// Reference returns the reference number, or "" when none was recorded.
func (t *Transaction) Reference() string {
	if t.ReferenceNumber == nil {
		return ""
	}
	return *t.ReferenceNumber
}
