package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/models"
)

// PaymentParams describes a confirmed gateway payment to reconcile against
// the ledger. Amount is a positive magnitude in major units.
type PaymentParams struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Description string
	Metadata    models.Metadata
	CreatedBy   *uuid.UUID
}

// EnsurePayment records the ledger credit for a confirmed payment exactly
// once. A repeat call with the same reference returns the existing row and
// created=false; that is what makes webhook retries safe.
func (s *Service) EnsurePayment(ctx context.Context, params PaymentParams) (*models.Transaction, bool, error) {
	if params.Reference == "" {
		return nil, false, werr.NewValidation("reference", "is required for reconciliation")
	}

	exists, err := s.Exists(ctx, params.Reference, models.TxTypePayment)
	if err != nil {
		return nil, false, werr.NewPersistence("idempotency lookup", err)
	}
	if exists {
		row, err := s.FindByReference(ctx, params.Reference, models.TxTypePayment)
		if err != nil {
			return nil, false, werr.NewPersistence("load existing payment", err)
		}
		s.logger.Info("payment already reconciled, skipping",
			zap.String("reference", params.Reference))
		return row, false, nil
	}

	row, err := s.Record(ctx, RecordParams{
		UserID:          params.UserID,
		Amount:          params.Amount,
		Type:            models.TxTypePayment,
		Currency:        params.Currency,
		Status:          models.TxStatusCompleted,
		Direction:       models.DirectionCredit,
		Description:     params.Description,
		ReferenceNumber: params.Reference,
		Metadata:        params.Metadata,
		CreatedBy:       params.CreatedBy,
	})
	if werr.IsConflict(err) {
		// Lost the race to a concurrent delivery of the same event; the
		// constraint turned it into a conflict, which means already applied.
		existing, findErr := s.FindByReference(ctx, params.Reference, models.TxTypePayment)
		if findErr != nil {
			return nil, false, werr.NewPersistence("load existing payment", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// RefundParams describes a confirmed gateway refund. Amount is a positive
// magnitude in major units; Type selects refund vs iyzico_refund.
type RefundParams struct {
	UserID           uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Reference        string
	Type             string
	PaymentReference string
	Description      string
	Metadata         models.Metadata
	CreatedBy        *uuid.UUID
}

// EnsureRefund records the ledger debit for a refund exactly once and marks
// the original payment transaction's metadata (refunded, isPartialRefund),
// the single permitted mutation of a historical row. Refunds bypass the
// negative-balance guard: the money already left via the gateway.
func (s *Service) EnsureRefund(ctx context.Context, params RefundParams) (*models.Transaction, bool, error) {
	if params.Reference == "" {
		return nil, false, werr.NewValidation("reference", "is required for reconciliation")
	}
	if params.Type == "" {
		params.Type = models.TxTypeRefund
	}
	if params.Type != models.TxTypeRefund && params.Type != models.TxTypeIyzicoRefund {
		return nil, false, werr.NewValidation("type", fmt.Sprintf("%q is not a refund type", params.Type))
	}

	exists, err := s.Exists(ctx, params.Reference, params.Type)
	if err != nil {
		return nil, false, werr.NewPersistence("idempotency lookup", err)
	}
	if exists {
		row, err := s.FindByReference(ctx, params.Reference, params.Type)
		if err != nil {
			return nil, false, werr.NewPersistence("load existing refund", err)
		}
		s.logger.Info("refund already reconciled, skipping",
			zap.String("reference", params.Reference))
		return row, false, nil
	}

	var original *models.Transaction
	isPartial := false
	if params.PaymentReference != "" {
		original, err = s.FindByReference(ctx, params.PaymentReference, models.TxTypePayment)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, false, werr.NewPersistence("load original payment", err)
		}
		if original != nil {
			isPartial = params.Amount.Round(2).LessThan(original.Amount.Abs())
		}
	}

	metadata := params.Metadata.Clone()
	if params.PaymentReference != "" {
		metadata["paymentReference"] = params.PaymentReference
	}
	metadata["isPartialRefund"] = isPartial

	row, err := s.Record(ctx, RecordParams{
		UserID:          params.UserID,
		Amount:          params.Amount,
		Type:            params.Type,
		Currency:        params.Currency,
		Status:          models.TxStatusCompleted,
		Direction:       models.DirectionDebit,
		Description:     params.Description,
		ReferenceNumber: params.Reference,
		Metadata:        metadata,
		CreatedBy:       params.CreatedBy,
		AllowNegative:   true,
	})
	if werr.IsConflict(err) {
		existing, findErr := s.FindByReference(ctx, params.Reference, params.Type)
		if findErr != nil {
			return nil, false, werr.NewPersistence("load existing refund", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if original != nil {
		enriched := original.Metadata.Clone()
		enriched["refunded"] = true
		enriched["isPartialRefund"] = isPartial
		err = s.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", original.ID).
			Update("metadata", enriched).Error
		if err != nil {
			// The refund row is committed; losing the linkage is recoverable
			// and must not fail the reconciliation.
			s.logger.Error("failed to mark original payment as refunded",
				zap.String("payment_id", original.ID.String()),
				zap.Error(err))
		}
	}

	return row, true, nil
}
