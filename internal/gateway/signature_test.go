package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	werr "github.com/plannivo/walletd/pkg/errors"
)

func TestBinanceCallbackSignature(t *testing.T) {
	c := NewBinancePayClient("https://bpay.example", "cert-sn", "top-secret", time.Second, zap.NewNop())
	payload := []byte(`{"bizStatus":"PAY_SUCCESS"}`)
	timestamp := "1700000000000"
	nonce := "0123456789abcdef0123456789abcdef"

	signature := c.sign(timestamp, nonce, payload)
	require.NoError(t, c.VerifyCallback(timestamp, nonce, signature, payload))

	err := c.VerifyCallback(timestamp, nonce, signature, []byte(`{"bizStatus":"PAY_CLOSED"}`))
	assert.True(t, werr.IsGateway(err), "tampered payload must fail, got %v", err)

	err = c.VerifyCallback(timestamp, "another-nonce", signature, payload)
	assert.True(t, werr.IsGateway(err), "tampered nonce must fail, got %v", err)
}

func TestIyzicoCallbackSignature(t *testing.T) {
	v := NewIyzicoVerifier("merchant-secret")
	cb := IyzicoCallback{
		EventType:      "PAYMENT_API",
		PaymentID:      "iyz-1",
		ConversationID: "conv-1",
	}

	mac := hmac.New(sha256.New, []byte("merchant-secret"))
	mac.Write([]byte(cb.EventType + cb.PaymentID + cb.ConversationID))
	cb.Signature = hex.EncodeToString(mac.Sum(nil))
	require.NoError(t, v.Verify(cb))

	cb.PaymentID = "iyz-2"
	err := v.Verify(cb)
	assert.True(t, werr.IsGateway(err), "got %v", err)
}
