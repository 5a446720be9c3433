package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/metrics"
	"github.com/plannivo/walletd/pkg/models"
)

// BinancePayClient talks to the Binance Pay merchant API. It implements
// wallet.RedirectGateway: deposits are created as orders and the user is
// sent to the returned checkout URL.
type BinancePayClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBinancePayClient creates a Binance Pay client. timeout bounds every
// API call including the response body read.
func NewBinancePayClient(baseURL, apiKey, apiSecret string, timeout time.Duration, logger *zap.Logger) *BinancePayClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BinancePayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type binanceOrderRequest struct {
	MerchantTradeNo string `json:"merchantTradeNo"`
	OrderAmount     string `json:"orderAmount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	GoodsDetails    []struct {
		GoodsType string `json:"goodsType"`
		GoodsName string `json:"goodsName"`
	} `json:"goodsDetails"`
}

type binanceOrderResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Data   struct {
		PrepayID    string `json:"prepayId"`
		CheckoutURL string `json:"checkoutUrl"`
	} `json:"data"`
	ErrorMessage string `json:"errorMessage"`
}

// CreateOrder opens a checkout order for a deposit. The wallet request id
// is used as the merchant trade number so gateway callbacks can be tied
// back to the originating request.
func (c *BinancePayClient) CreateOrder(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, merchantTradeNo string) (string, string, error) {
	body := binanceOrderRequest{
		MerchantTradeNo: merchantTradeNo,
		OrderAmount:     amount.StringFixed(2),
		Currency:        currency,
		Description:     "wallet deposit",
	}
	body.GoodsDetails = append(body.GoodsDetails, struct {
		GoodsType string `json:"goodsType"`
		GoodsName string `json:"goodsName"`
	}{GoodsType: "02", GoodsName: "wallet top-up"})

	var resp binanceOrderResponse
	if err := c.post(ctx, "/binancepay/openapi/v3/order", body, &resp); err != nil {
		metrics.GatewayFailures.WithLabelValues(GatewayBinancePay, "create_order").Inc()
		return "", "", err
	}
	if resp.Status != "SUCCESS" {
		metrics.GatewayFailures.WithLabelValues(GatewayBinancePay, "create_order").Inc()
		return "", "", werr.NewGateway(GatewayBinancePay, "create order",
			fmt.Errorf("status %s code %s: %s", resp.Status, resp.Code, resp.ErrorMessage))
	}
	return resp.Data.PrepayID, resp.Data.CheckoutURL, nil
}

// post signs and sends a Binance Pay API request. The signature covers
// timestamp, nonce and the raw payload per the merchant API scheme.
func (c *BinancePayClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return werr.NewGateway(GatewayBinancePay, "encode request", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce, err := newNonce()
	if err != nil {
		return werr.NewGateway(GatewayBinancePay, "generate nonce", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return werr.NewGateway(GatewayBinancePay, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("BinancePay-Timestamp", timestamp)
	req.Header.Set("BinancePay-Nonce", nonce)
	req.Header.Set("BinancePay-Certificate-SN", c.apiKey)
	req.Header.Set("BinancePay-Signature", c.sign(timestamp, nonce, payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return werr.NewGateway(GatewayBinancePay, "send request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return werr.NewGateway(GatewayBinancePay, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return werr.NewGateway(GatewayBinancePay, "send request",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return werr.NewGateway(GatewayBinancePay, "decode response", err)
	}
	return nil
}

func (c *BinancePayClient) sign(timestamp, nonce string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + "\n" + nonce + "\n" + string(payload) + "\n"))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// VerifyCallback checks the signature on an incoming Binance Pay webhook.
// Binance signs callbacks with the same HMAC scheme as requests.
func (c *BinancePayClient) VerifyCallback(timestamp, nonce, signature string, payload []byte) error {
	expected := c.sign(timestamp, nonce, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToUpper(signature))) {
		return werr.NewGateway(GatewayBinancePay, "verify callback signature",
			fmt.Errorf("signature mismatch"))
	}
	return nil
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// BinanceCallback is the webhook payload Binance Pay posts on order state
// changes. Data arrives as a JSON string inside the envelope.
type BinanceCallback struct {
	BizType   string `json:"bizType"`
	BizID     int64  `json:"bizId"`
	BizStatus string `json:"bizStatus"`
	Data      string `json:"data"`
}

type binanceCallbackData struct {
	MerchantTradeNo string `json:"merchantTradeNo"`
	TransactionID   string `json:"transactionId"`
	OrderAmount     string `json:"orderAmount"`
	Currency        string `json:"currency"`
}

// MapBinanceCallback turns a verified Binance Pay callback into a normalized
// payment event. Only PAY_SUCCESS produces an event; other statuses are
// acknowledged without action.
func MapBinanceCallback(cb BinanceCallback) (PaymentEvent, bool, error) {
	if cb.BizStatus != "PAY_SUCCESS" {
		return PaymentEvent{}, false, nil
	}
	var data binanceCallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil {
		return PaymentEvent{}, false, werr.NewGateway(GatewayBinancePay, "decode callback data", err)
	}
	amount, err := decimal.NewFromString(data.OrderAmount)
	if err != nil {
		return PaymentEvent{}, false, werr.NewGateway(GatewayBinancePay, "parse callback amount", err)
	}
	return PaymentEvent{
		Gateway:    GatewayBinancePay,
		EventID:    data.TransactionID,
		IntentID:   data.MerchantTradeNo,
		Amount:     amount.Round(2),
		Currency:   data.Currency,
		OccurredAt: time.Now().UTC(),
		Raw: models.Metadata{
			"binanceTransactionId": data.TransactionID,
			"merchantTradeNo":      data.MerchantTradeNo,
		},
	}, true, nil
}
