package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/models"
)

// IyzicoCallback is the notification payload iyzico posts after a payment
// or refund settles. Amounts arrive as decimal strings in major units.
type IyzicoCallback struct {
	EventType      string `json:"iyziEventType"`
	EventTime      int64  `json:"iyziEventTime"`
	PaymentID      string `json:"paymentId"`
	ConversationID string `json:"paymentConversationId"`
	Status         string `json:"status"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	BuyerID        string `json:"buyerId"`
	RefundID       string `json:"refundId"`
	Signature      string `json:"signature"`
}

// IyzicoVerifier validates callback signatures. iyzico signs the event
// type, payment id and conversation id with the merchant secret.
type IyzicoVerifier struct {
	secretKey string
}

func NewIyzicoVerifier(secretKey string) *IyzicoVerifier {
	return &IyzicoVerifier{secretKey: secretKey}
}

func (v *IyzicoVerifier) Verify(cb IyzicoCallback) error {
	mac := hmac.New(sha256.New, []byte(v.secretKey))
	mac.Write([]byte(cb.EventType + cb.PaymentID + cb.ConversationID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return werr.NewGateway(GatewayIyzico, "verify callback signature",
			fmt.Errorf("signature mismatch"))
	}
	return nil
}

// MapIyzicoCallback turns a verified iyzico callback into a normalized
// event. Payment notifications map to a PaymentEvent, refund notifications
// to a RefundEvent; failed statuses are acknowledged without action.
func MapIyzicoCallback(cb IyzicoCallback) (PaymentEvent, RefundEvent, bool, bool, error) {
	if cb.Status != "SUCCESS" && cb.Status != "success" {
		return PaymentEvent{}, RefundEvent{}, false, false, nil
	}
	amount, err := decimal.NewFromString(cb.Price)
	if err != nil {
		return PaymentEvent{}, RefundEvent{}, false, false,
			werr.NewGateway(GatewayIyzico, "parse callback amount", err)
	}
	occurred := time.Now().UTC()
	if cb.EventTime > 0 {
		occurred = time.UnixMilli(cb.EventTime).UTC()
	}
	raw := models.Metadata{
		"iyzicoPaymentId":      cb.PaymentID,
		"iyzicoConversationId": cb.ConversationID,
	}

	var userID uuid.UUID
	if cb.BuyerID != "" {
		if id, err := uuid.Parse(cb.BuyerID); err == nil {
			userID = id
		}
	}

	switch cb.EventType {
	case "PAYMENT_API", "CHECKOUT_FORM_AUTH":
		pe := PaymentEvent{
			Gateway:    GatewayIyzico,
			EventID:    cb.PaymentID,
			IntentID:   cb.ConversationID,
			UserID:     userID,
			Amount:     amount.Round(2),
			Currency:   cb.Currency,
			OccurredAt: occurred,
			Raw:        raw,
		}
		return pe, RefundEvent{}, true, false, nil

	case "REFUND", "REFUND_RETRY":
		refundID := cb.RefundID
		if refundID == "" {
			// iyzico omits the refund id on some retry notifications; the
			// payment id still keys the refund uniquely per payment.
			refundID = "refund-" + cb.PaymentID
		}
		re := RefundEvent{
			Gateway:    GatewayIyzico,
			EventID:    refundID,
			RefundID:   refundID,
			IntentID:   cb.ConversationID,
			Amount:     amount.Round(2),
			Currency:   cb.Currency,
			OccurredAt: occurred,
			Raw:        raw,
		}
		return PaymentEvent{}, re, false, true, nil
	}

	return PaymentEvent{}, RefundEvent{}, false, false, nil
}
