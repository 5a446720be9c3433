// Package gateway translates provider-specific payment payloads into
// normalized internal events and reconciles them against the ledger exactly
// once. Provider payloads never reach the ledger directly.
package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plannivo/walletd/pkg/models"
)

// Gateway names as stored on requests and intents.
const (
	GatewayStripe     = "stripe"
	GatewayBinancePay = "binance_pay"
	GatewayIyzico     = "iyzico"
)

// PaymentEvent is the one shape a confirmed capture takes internally,
// whatever provider it came from. Amount is in major units.
type PaymentEvent struct {
	Gateway    string
	EventID    string
	IntentID   string
	UserID     uuid.UUID // zero when the payload carried no usable user id
	Amount     decimal.Decimal
	Currency   string
	OccurredAt time.Time
	Raw        models.Metadata
}

// RefundEvent is the normalized shape of a confirmed refund.
type RefundEvent struct {
	Gateway    string
	EventID    string
	RefundID   string
	IntentID   string
	Amount     decimal.Decimal
	Currency   string
	OccurredAt time.Time
	Raw        models.Metadata
}

// MajorUnits converts a gateway minor-unit amount (cents) into major units
// rounded to two decimals, the only representation the ledger stores.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).Round(2)
}
