package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking payment statuses, updated by gateway reconciliation.
const (
	BookingPaymentPending  = "pending"
	BookingPaymentPaid     = "paid"
	BookingPaymentRefunded = "refunded"
)

// Booking is the slice of the booking record the wallet core owns: the
// payment-status field reconciliation keeps in step with the ledger.
type Booking struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID        uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	PaymentStatus string    `json:"payment_status" gorm:"type:varchar(20)" validate:"required,oneof=pending paid refunded"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }
