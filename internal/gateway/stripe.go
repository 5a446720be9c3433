package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/paymentintent"
	"github.com/stripe/stripe-go/v75/refund"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/metrics"
	"github.com/plannivo/walletd/pkg/models"
)

// StripeClient wraps the Stripe SDK for card captures and refunds. It
// implements wallet.CardGateway.
type StripeClient struct {
	apiKey        string
	webhookSecret string
	logger        *zap.Logger
	timeout       time.Duration
}

// NewStripeClient creates a Stripe client. timeout bounds every API call;
// a timeout is an unknown outcome, never a success.
func NewStripeClient(apiKey, webhookSecret string, timeout time.Duration, logger *zap.Logger) *StripeClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeClient{apiKey: apiKey, webhookSecret: webhookSecret, logger: logger, timeout: timeout}
}

// CreateIntent creates a payment intent for a card deposit. The amount is
// converted to minor units for the wire; idempotencyKey dedupes retries on
// the Stripe side.
func (c *StripeClient) CreateIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (string, error) {
	stripe.Key = c.apiKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart()),
		Currency: stripe.String(currency),
		Metadata: map[string]string{"user_id": userID.String()},
	}
	params.SetIdempotencyKey(idempotencyKey)

	intent, err := callStripe(ctx, c.timeout, func() (*stripe.PaymentIntent, error) {
		return paymentintent.New(params)
	})
	if err != nil {
		metrics.GatewayFailures.WithLabelValues(GatewayStripe, "create_intent").Inc()
		return "", werr.NewGateway(GatewayStripe, "create payment intent", err)
	}
	return intent.ID, nil
}

// CreateRefund issues a full or partial refund against a payment intent.
// Called before any local transaction; the result is reconciled afterwards.
func (c *StripeClient) CreateRefund(ctx context.Context, gatewayIntentID string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	stripe.Key = c.apiKey
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayIntentID),
	}
	if !amount.IsZero() {
		params.Amount = stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart())
	}
	params.SetIdempotencyKey(idempotencyKey)

	ref, err := callStripe(ctx, c.timeout, func() (*stripe.Refund, error) {
		return refund.New(params)
	})
	if err != nil {
		metrics.GatewayFailures.WithLabelValues(GatewayStripe, "create_refund").Inc()
		return "", werr.NewGateway(GatewayStripe, "create refund", err)
	}
	return ref.ID, nil
}

// callStripe runs a Stripe SDK call under a deadline. The SDK does not take
// a context, so the deadline is enforced around the call; on timeout the
// outcome is unknown and reported as an error.
func callStripe[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("stripe call timed out after %s: outcome unknown", timeout)
	}
}

// VerifyWebhook checks the Stripe-Signature header and returns the parsed
// event. Dispatch happens only after verification.
func (c *StripeClient) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, werr.NewGateway(GatewayStripe, "verify webhook signature", err)
	}
	return event, nil
}

// MapStripeEvent turns a verified Stripe event into a normalized internal
// event. All duck-typed access to the raw payload lives here and nowhere
// else. The booleans report which event shape was produced.
func MapStripeEvent(event stripe.Event) (PaymentEvent, RefundEvent, bool, bool) {
	obj := event.Data.Object

	switch event.Type {
	case "payment_intent.succeeded":
		pe := PaymentEvent{
			Gateway:    GatewayStripe,
			EventID:    event.ID,
			IntentID:   objString(obj, "id"),
			Amount:     MajorUnits(objInt(obj, "amount_received")),
			Currency:   objString(obj, "currency"),
			OccurredAt: time.Unix(event.Created, 0).UTC(),
			Raw:        models.Metadata{"stripeEventId": event.ID},
		}
		if meta, ok := obj["metadata"].(map[string]interface{}); ok {
			if raw, ok := meta["user_id"].(string); ok {
				if id, err := uuid.Parse(raw); err == nil {
					pe.UserID = id
				}
			}
		}
		return pe, RefundEvent{}, pe.IntentID != "", false

	case "charge.refunded":
		re := RefundEvent{
			Gateway:    GatewayStripe,
			EventID:    event.ID,
			IntentID:   objString(obj, "payment_intent"),
			Currency:   objString(obj, "currency"),
			OccurredAt: time.Unix(event.Created, 0).UTC(),
			Raw:        models.Metadata{"stripeEventId": event.ID},
		}
		// The charge's amount_refunded is cumulative across every refund on
		// the charge. The amount for this event lives on the refund object
		// itself (refunds.data is most-recent-first), keyed by its id.
		if refunds, ok := obj["refunds"].(map[string]interface{}); ok {
			if data, ok := refunds["data"].([]interface{}); ok && len(data) > 0 {
				if latest, ok := data[0].(map[string]interface{}); ok {
					re.RefundID = objString(latest, "id")
					re.Amount = MajorUnits(objInt(latest, "amount"))
				}
			}
		}
		if re.RefundID == "" {
			// Without a refund id there is no idempotency key; fall back to
			// the event id, which Stripe keeps stable across retries. Only
			// here is amount_refunded safe to use: with no refund list the
			// cumulative total is the single refund.
			re.RefundID = event.ID
			re.Amount = MajorUnits(objInt(obj, "amount_refunded"))
		}
		return PaymentEvent{}, re, false, re.IntentID != ""
	}

	return PaymentEvent{}, RefundEvent{}, false, false
}

func objString(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func objInt(obj map[string]interface{}, key string) int64 {
	switch v := obj[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
