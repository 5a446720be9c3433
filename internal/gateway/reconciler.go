package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plannivo/walletd/internal/actor"
	"github.com/plannivo/walletd/internal/ledger"
	"github.com/plannivo/walletd/internal/wallet"
	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/metrics"
	"github.com/plannivo/walletd/pkg/models"
)

// Reconciler applies normalized gateway events to local state: deposit
// requests settle, payment intents credit the ledger, refunds debit it.
// Every path is safe to run again with the same event.
type Reconciler struct {
	logger *zap.Logger
	db     *gorm.DB
	ledger *ledger.Service
	wallet *wallet.Service
	actors *actor.Resolver
}

// NewReconciler creates a reconciler.
func NewReconciler(logger *zap.Logger, db *gorm.DB, ledgerSvc *ledger.Service, walletSvc *wallet.Service, actors *actor.Resolver) *Reconciler {
	return &Reconciler{logger: logger, db: db, ledger: ledgerSvc, wallet: walletSvc, actors: actors}
}

// HandlePayment applies a confirmed capture. If the gateway transaction
// belongs to a deposit request, the deposit workflow settles it; otherwise
// the payment is reconciled against its payment intent. Errors are returned
// to the webhook caller so the provider retries.
func (r *Reconciler) HandlePayment(ctx context.Context, ev PaymentEvent) error {
	_, applied, err := r.wallet.CompleteDepositByGatewayRef(ctx, ev.Gateway, ev.IntentID, models.Metadata{"eventId": ev.EventID})
	if err == nil {
		if !applied {
			metrics.DuplicateEvents.WithLabelValues(ev.Gateway, "payment").Inc()
		}
		return nil
	}
	if !werr.IsValidation(err) {
		return err
	}
	// No deposit request for this id; fall through to the payment-intent path.

	var intent models.PaymentIntent
	err = r.db.WithContext(ctx).Where("gateway_intent_id = ?", ev.IntentID).First(&intent).Error
	if err == gorm.ErrRecordNotFound {
		return werr.NewValidation("intent_id", fmt.Sprintf("no payment intent or deposit request for %s/%s", ev.Gateway, ev.IntentID))
	}
	if err != nil {
		return werr.NewPersistence("load payment intent", err)
	}

	userID := ev.UserID
	if userID == uuid.Nil {
		userID = intent.UserID
	}
	amount := ev.Amount
	if amount.IsZero() {
		amount = intent.Amount
	}
	currency := ev.Currency
	if currency == "" {
		currency = intent.Currency
	}

	_, created, err := r.ledger.EnsurePayment(ctx, ledger.PaymentParams{
		UserID:      userID,
		Amount:      amount,
		Currency:    currency,
		Reference:   ev.IntentID,
		Description: fmt.Sprintf("Payment captured via %s", ev.Gateway),
		Metadata:    ev.Raw,
		CreatedBy:   r.actors.System(),
	})
	if err != nil {
		return err
	}
	if !created {
		metrics.DuplicateEvents.WithLabelValues(ev.Gateway, "payment").Inc()
	}

	if err := r.markIntent(ctx, &intent, models.IntentStatusSucceeded, models.BookingPaymentPaid); err != nil {
		return err
	}

	r.logger.Info("payment reconciled",
		zap.String("gateway", ev.Gateway),
		zap.String("intent_id", ev.IntentID),
		zap.Bool("created", created))
	return nil
}

// HandleRefund applies a confirmed refund: one Refund row, one ledger debit,
// intent moved to refunded or partially_refunded. Re-delivery is a no-op.
func (r *Reconciler) HandleRefund(ctx context.Context, ev RefundEvent) error {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("gateway_intent_id = ?", ev.IntentID).First(&intent).Error
	if err == gorm.ErrRecordNotFound {
		return werr.NewValidation("intent_id", fmt.Sprintf("no payment intent for %s/%s", ev.Gateway, ev.IntentID))
	}
	if err != nil {
		return werr.NewPersistence("load payment intent", err)
	}

	amount := ev.Amount.Round(2)
	isPartial := amount.LessThan(intent.Amount)

	refundType := models.TxTypeRefund
	if ev.Gateway == GatewayIyzico {
		refundType = models.TxTypeIyzicoRefund
	}

	_, created, err := r.ledger.EnsureRefund(ctx, ledger.RefundParams{
		UserID:           intent.UserID,
		Amount:           amount,
		Currency:         intent.Currency,
		Reference:        ev.RefundID,
		Type:             refundType,
		PaymentReference: ev.IntentID,
		Description:      fmt.Sprintf("Refund via %s", ev.Gateway),
		Metadata:         ev.Raw,
		CreatedBy:        r.actors.System(),
	})
	if err != nil {
		return err
	}
	if !created {
		metrics.DuplicateEvents.WithLabelValues(ev.Gateway, "refund").Inc()
		return nil
	}

	refund := &models.Refund{
		ID:              uuid.New(),
		PaymentIntentID: intent.ID,
		GatewayRefundID: ev.RefundID,
		Amount:          amount,
		Currency:        intent.Currency,
		Status:          models.RefundStatusCompleted,
		IsPartial:       isPartial,
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(refund).Error; err != nil {
		// The ledger debit committed; the missing linkage row is recoverable
		// and must not trigger a retry that could double-debit.
		r.logger.Error("failed to persist refund record",
			zap.String("refund_id", ev.RefundID), zap.Error(err))
	}

	status := models.IntentStatusRefunded
	if isPartial {
		status = models.IntentStatusPartiallyRefunded
	}
	if err := r.markIntent(ctx, &intent, status, models.BookingPaymentRefunded); err != nil {
		return err
	}

	r.logger.Info("refund reconciled",
		zap.String("gateway", ev.Gateway),
		zap.String("refund_id", ev.RefundID),
		zap.Bool("partial", isPartial))
	return nil
}

// markIntent updates the intent status and, when the intent is tied to a
// booking, the booking's payment-status field.
func (r *Reconciler) markIntent(ctx context.Context, intent *models.PaymentIntent, status, bookingStatus string) error {
	intent.Status = status
	intent.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(intent).Error; err != nil {
		return werr.NewPersistence("update payment intent", err)
	}
	if intent.BookingID != nil {
		err := r.db.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", intent.BookingID).
			Updates(map[string]interface{}{"payment_status": bookingStatus, "updated_at": time.Now().UTC()}).Error
		if err != nil {
			return werr.NewPersistence("update booking payment status", err)
		}
	}
	return nil
}
