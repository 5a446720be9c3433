package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment intent statuses.
const (
	IntentStatusCreated           = "created"
	IntentStatusSucceeded         = "succeeded"
	IntentStatusFailed            = "failed"
	IntentStatusRefunded          = "refunded"
	IntentStatusPartiallyRefunded = "partially_refunded"
)

// PaymentIntent is the local record a gateway capture is reconciled against.
// GatewayIntentID is the external correlation key (e.g. Stripe "pi_...").
type PaymentIntent struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Gateway         string          `json:"gateway" gorm:"type:varchar(40)" validate:"required"`
	GatewayIntentID string          `json:"gateway_intent_id" gorm:"type:varchar(255);uniqueIndex" validate:"required,max=255"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)" validate:"required"`
	Currency        string          `json:"currency" gorm:"type:varchar(10)" validate:"required,iso4217"`
	Status          string          `json:"status" gorm:"type:varchar(30);index" validate:"required,oneof=created succeeded failed refunded partially_refunded"`
	BookingID       *uuid.UUID      `json:"booking_id,omitempty" gorm:"type:uuid"`
	Metadata        Metadata        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

// Refund statuses mirror transaction statuses.
const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"
)

// Refund records a gateway refund issued against a payment intent.
type Refund struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	PaymentIntentID uuid.UUID       `json:"payment_intent_id" gorm:"type:uuid;index" validate:"required,uuid"`
	GatewayRefundID string          `json:"gateway_refund_id" gorm:"type:varchar(255);uniqueIndex" validate:"required,max=255"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(20,2)" validate:"required"`
	Currency        string          `json:"currency" gorm:"type:varchar(10)" validate:"required,iso4217"`
	Status          string          `json:"status" gorm:"type:varchar(20)" validate:"required,oneof=pending completed failed"`
	IsPartial       bool            `json:"is_partial"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (Refund) TableName() string { return "refunds" }
