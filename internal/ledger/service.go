// Package ledger implements the append-only transaction store and the
// balance projection derived from it. Record is the sole mutation primitive;
// everything else in the system funnels monetary movement through it.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/metrics"
	"github.com/plannivo/walletd/pkg/models"
)

// BalanceCache caches balance lookups. Implementations must tolerate being
// nil-checked by the service; a nil cache disables caching.
type BalanceCache interface {
	Get(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, bool)
	Set(ctx context.Context, userID uuid.UUID, currency string, balance decimal.Decimal)
	Invalidate(ctx context.Context, userID uuid.UUID, currency string)
}

// Service is the ledger engine.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	cache  BalanceCache
}

// NewService creates a ledger service. cache may be nil.
func NewService(logger *zap.Logger, db *gorm.DB, cache BalanceCache) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger requires a database handle")
	}
	return &Service{logger: logger, db: db, cache: cache}, nil
}

// RecordParams describes one ledger entry. Amount is a positive magnitude;
// Direction decides the stored sign.
type RecordParams struct {
	UserID          uuid.UUID
	Amount          decimal.Decimal
	Type            string
	Currency        string
	Status          string
	Direction       string
	Description     string
	ReferenceNumber string
	Metadata        models.Metadata
	CreatedBy       *uuid.UUID
	AllowNegative   bool
}

// Record appends one immutable transaction row and keeps the cached balance
// projection consistent within the same database transaction. A debit that
// would drive the completed balance negative fails with a ValidationError
// unless AllowNegative is set. A duplicate (reference, type) pair fails with
// a ConflictError, whether detected by lookup or by the unique constraint.
func (s *Service) Record(ctx context.Context, params RecordParams) (*models.Transaction, error) {
	if params.Amount.IsZero() {
		return nil, werr.NewValidation("amount", "must be non-zero")
	}
	if params.Direction != models.DirectionCredit && params.Direction != models.DirectionDebit {
		return nil, werr.NewValidation("direction", "must be credit or debit")
	}
	if params.Currency == "" {
		return nil, werr.NewValidation("currency", "is required")
	}
	if !validTxType(params.Type) {
		return nil, werr.NewValidation("type", fmt.Sprintf("unknown transaction type %q", params.Type))
	}
	if params.Status == "" {
		params.Status = models.TxStatusCompleted
	}

	amount := params.Amount.Abs().Round(2)
	if params.Direction == models.DirectionDebit {
		amount = amount.Neg()
	}

	row := &models.Transaction{
		ID:          uuid.New(),
		UserID:      params.UserID,
		Amount:      amount,
		Currency:    strings.ToUpper(params.Currency),
		Type:        params.Type,
		Direction:   params.Direction,
		Status:      params.Status,
		Description: params.Description,
		Metadata:    params.Metadata,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if params.ReferenceNumber != "" {
		ref := params.ReferenceNumber
		row.ReferenceNumber = &ref
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.ReferenceNumber != nil {
			exists, err := existsTx(tx, *row.ReferenceNumber, row.Type)
			if err != nil {
				return werr.NewPersistence("idempotency lookup", err)
			}
			if exists {
				return werr.NewConflict("transaction", fmt.Sprintf("%s/%s", *row.ReferenceNumber, row.Type))
			}
		}

		summary, err := lockSummary(tx, row.UserID, row.Currency)
		if err != nil {
			return werr.NewPersistence("lock account summary", err)
		}

		if row.Status == models.TxStatusCompleted {
			next := summary.Balance.Add(row.Amount)
			if next.IsNegative() && !params.AllowNegative {
				return werr.NewValidation("amount",
					fmt.Sprintf("insufficient balance: %s %s available, debit of %s requested",
						summary.Balance.StringFixed(2), row.Currency, row.Amount.Abs().StringFixed(2)))
			}
		}

		if err := tx.Create(row).Error; err != nil {
			if isUniqueViolation(err) {
				return werr.NewConflict("transaction", fmt.Sprintf("%s/%s", row.Reference(), row.Type))
			}
			return werr.NewPersistence("create transaction", err)
		}

		if row.Status == models.TxStatusCompleted {
			applyToSummary(summary, row)
			if err := tx.Save(summary).Error; err != nil {
				return werr.NewPersistence("update account summary", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, row.UserID, row.Currency)
	}
	metrics.TransactionsRecorded.WithLabelValues(row.Type, row.Status).Inc()
	s.logger.Info("recorded transaction",
		zap.String("id", row.ID.String()),
		zap.String("user_id", row.UserID.String()),
		zap.String("type", row.Type),
		zap.String("currency", row.Currency),
		zap.String("amount", row.Amount.StringFixed(2)),
		zap.String("status", row.Status))
	return row, nil
}

// Exists is the idempotency guard: it reports whether a transaction with
// this (referenceNumber, type) pair has already been recorded.
func (s *Service) Exists(ctx context.Context, referenceNumber, txType string) (bool, error) {
	if referenceNumber == "" {
		return false, nil
	}
	return existsTx(s.db.WithContext(ctx), referenceNumber, txType)
}

// FindByReference returns the transaction recorded for the given pair, or
// gorm.ErrRecordNotFound.
func (s *Service) FindByReference(ctx context.Context, referenceNumber, txType string) (*models.Transaction, error) {
	var row models.Transaction
	err := s.db.WithContext(ctx).
		Where("reference_number = ? AND type = ?", referenceNumber, txType).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Transactions lists a user's ledger rows, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, currency string, limit, offset int) ([]*models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if currency != "" {
		query = query.Where("currency = ?", strings.ToUpper(currency))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []*models.Transaction
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, total, nil
}

// DB exposes the underlying handle for workflows that must compose their
// own status transition with a ledger write in one database transaction.
func (s *Service) DB() *gorm.DB { return s.db }

// RecordTx behaves like Record but runs inside the caller's transaction.
// The workflows use it to make "transition request + post ledger entry"
// atomic. Cache invalidation stays with the caller's commit.
func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, params RecordParams) (*models.Transaction, error) {
	sub := &Service{logger: s.logger, db: tx, cache: nil}
	return sub.Record(ctx, params)
}

func existsTx(tx *gorm.DB, referenceNumber, txType string) (bool, error) {
	var count int64
	err := tx.Model(&models.Transaction{}).
		Where("reference_number = ? AND type = ?", referenceNumber, txType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// lockSummary loads (creating if missing) the balance projection row for
// (user, currency), locked FOR UPDATE where the dialect supports it. The
// row lock serializes concurrent debits against the same balance.
func lockSummary(tx *gorm.DB, userID uuid.UUID, currency string) (*models.AccountSummary, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var summary models.AccountSummary
	err := q.Where("user_id = ? AND currency = ?", userID, currency).First(&summary).Error
	if err == nil {
		return &summary, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	summary = models.AccountSummary{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// applyToSummary folds one completed row into the projection using the same
// accumulation rules the full replay uses.
func applyToSummary(summary *models.AccountSummary, row *models.Transaction) {
	summary.Balance = summary.Balance.Add(row.Amount)
	accumulate(summary, row)
	summary.UpdatedAt = time.Now().UTC()
}

func validTxType(t string) bool {
	switch t {
	case models.TxTypePayment, models.TxTypeRefund, models.TxTypeIyzicoRefund,
		models.TxTypeManualCredit, models.TxTypeManualDebit,
		models.TxTypeDeposit, models.TxTypeWithdrawal,
		models.TxTypePackagePurchase, models.TxTypeBookingCharge:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "UNIQUE constraint failed") // sqlite
}
