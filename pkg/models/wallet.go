package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deposit methods.
const (
	DepositMethodBankTransfer = "bank_transfer"
	DepositMethodCard         = "card"
	DepositMethodBinancePay   = "binance_pay"
	DepositMethodCash         = "cash"
)

// Deposit request statuses. Terminal: completed, rejected, failed.
const (
	DepositStatusPending   = "pending"
	DepositStatusApproved  = "approved"
	DepositStatusRejected  = "rejected"
	DepositStatusCompleted = "completed"
	DepositStatusFailed    = "failed"
)

// DepositRequest is a user-submitted funding request. Approval posts exactly
// one ledger credit; rejection posts nothing.
type DepositRequest struct {
	ID                   uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID               uuid.UUID       `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)" validate:"required"`
	Currency             string          `json:"currency" gorm:"type:varchar(10)" validate:"required,iso4217"`
	Method               string          `json:"method" gorm:"type:varchar(20)" validate:"required,oneof=bank_transfer card binance_pay cash"`
	Status               string          `json:"status" gorm:"type:varchar(20);index" validate:"required,oneof=pending approved rejected completed failed"`
	Gateway              string          `json:"gateway,omitempty" gorm:"type:varchar(40)"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty" gorm:"type:varchar(255);index"`
	BankAccountID        *uuid.UUID      `json:"bank_account_id,omitempty" gorm:"type:uuid" validate:"omitempty,uuid"`
	ReferenceCode        string          `json:"reference_code,omitempty" gorm:"type:varchar(64)"`
	Verification         string          `json:"verification,omitempty" gorm:"type:varchar(500)"`
	FailureReason        string          `json:"failure_reason,omitempty" gorm:"type:varchar(500)"`
	InitiatedBy          *uuid.UUID      `json:"initiated_by,omitempty" gorm:"type:uuid"`
	ProcessedBy          *uuid.UUID      `json:"processed_by,omitempty" gorm:"type:uuid"`
	Metadata             Metadata        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt            time.Time       `json:"created_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

func (DepositRequest) TableName() string { return "wallet_deposit_requests" }

// Terminal reports whether the request can no longer change state.
func (d *DepositRequest) Terminal() bool {
	return d.Status == DepositStatusCompleted || d.Status == DepositStatusRejected || d.Status == DepositStatusFailed
}

// Withdrawal request statuses. Terminal: completed, rejected, failed.
const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusFailed    = "failed"
)

// WithdrawalRequest is the payout counterpart: request, approve, finalize.
// Only a successful finalization produces a ledger debit.
type WithdrawalRequest struct {
	ID             uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID         uuid.UUID       `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)" validate:"required"`
	Currency       string          `json:"currency" gorm:"type:varchar(10)" validate:"required,iso4217"`
	PayoutMethodID *uuid.UUID      `json:"payout_method_id,omitempty" gorm:"type:uuid" validate:"omitempty,uuid"`
	Status         string          `json:"status" gorm:"type:varchar(20);index" validate:"required,oneof=pending approved completed rejected failed"`
	ApproverID     *uuid.UUID      `json:"approver_id,omitempty" gorm:"type:uuid"`
	ProcessorID    *uuid.UUID      `json:"processor_id,omitempty" gorm:"type:uuid"`
	AutoApproved   bool            `json:"auto_approved"`
	FailureReason  string          `json:"failure_reason,omitempty" gorm:"type:varchar(500)"`
	Metadata       Metadata        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func (WithdrawalRequest) TableName() string { return "wallet_withdrawal_requests" }

// Terminal reports whether the request can no longer change state.
func (w *WithdrawalRequest) Terminal() bool {
	return w.Status == WithdrawalStatusCompleted || w.Status == WithdrawalStatusRejected || w.Status == WithdrawalStatusFailed
}

// BankAccount is a company bank account users send bank transfers to.
type BankAccount struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Name      string    `json:"name" gorm:"type:varchar(200)" validate:"required,max=200"`
	IBAN      string    `json:"iban" gorm:"type:varchar(34)" validate:"required,max=34"`
	Currency  string    `json:"currency" gorm:"type:varchar(10)" validate:"required,iso4217"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
}

// PayoutMethod is where a withdrawal pays out to (bank details, PayPal, ...).
type PayoutMethod struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Kind      string    `json:"kind" gorm:"type:varchar(40)" validate:"required"`
	Details   Metadata  `json:"details,omitempty" gorm:"type:text"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
}
