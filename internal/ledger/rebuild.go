package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plannivo/walletd/pkg/models"
)

// RebuildResult reports what a replay computed for one (user, currency).
type RebuildResult struct {
	UserID        uuid.UUID
	Currency      string
	Balance       decimal.Decimal
	TotalSpent    decimal.Decimal
	LastPaymentAt *time.Time
	Transactions  int
}

// Rebuild recomputes a user's projection rows by replaying their complete
// transaction history, currency by currency, and overwrites the cached
// student_accounts rows. It is the authoritative aggregation algorithm:
// whatever the incremental path maintains must agree with this replay.
func (s *Service) Rebuild(ctx context.Context, userID uuid.UUID, dryRun bool) ([]RebuildResult, error) {
	var rows []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.TxStatusCompleted).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}

	byCurrency := make(map[string]*models.AccountSummary)
	counts := make(map[string]int)
	for i := range rows {
		row := &rows[i]
		summary, ok := byCurrency[row.Currency]
		if !ok {
			summary = &models.AccountSummary{
				UserID:   userID,
				Currency: row.Currency,
				Balance:  decimal.Zero,
			}
			byCurrency[row.Currency] = summary
		}
		summary.Balance = summary.Balance.Add(row.Amount)
		accumulate(summary, row)
		counts[row.Currency]++
	}

	results := make([]RebuildResult, 0, len(byCurrency))
	for currency, summary := range byCurrency {
		summary.Balance = summary.Balance.Round(2)
		results = append(results, RebuildResult{
			UserID:        userID,
			Currency:      currency,
			Balance:       summary.Balance,
			TotalSpent:    summary.TotalSpent,
			LastPaymentAt: summary.LastPaymentAt,
			Transactions:  counts[currency],
		})
	}

	if dryRun {
		return results, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for currency, computed := range byCurrency {
			existing, err := lockSummary(tx, userID, currency)
			if err != nil {
				return err
			}
			existing.Balance = computed.Balance
			existing.TotalSpent = computed.TotalSpent
			existing.LastPaymentAt = computed.LastPaymentAt
			existing.UpdatedAt = time.Now().UTC()
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write rebuilt summaries: %w", err)
	}

	for currency := range byCurrency {
		s.InvalidateBalance(ctx, userID, currency)
	}

	s.logger.Info("rebuilt account summaries",
		zap.String("user_id", userID.String()),
		zap.Int("currencies", len(byCurrency)),
		zap.Int("transactions", len(rows)))
	return results, nil
}

// UserIDsWithTransactions returns the distinct users present in the ledger,
// for full-store rebuilds.
func (s *Service) UserIDsWithTransactions(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger users: %w", err)
	}
	return ids, nil
}

// accumulate applies the type-specific aggregation rules shared by the
// incremental projection and the full replay:
//   - payment and manual_credit add to total spend and bump the last-payment
//     timestamp
//   - refund types bump the last-payment timestamp only when the stored
//     amount is positive
//   - package_purchase and booking_charge affect the balance only; they are
//     excluded from spend
func accumulate(summary *models.AccountSummary, row *models.Transaction) {
	switch row.Type {
	case models.TxTypePayment, models.TxTypeManualCredit:
		summary.TotalSpent = summary.TotalSpent.Add(row.Amount.Abs())
		at := row.CreatedAt
		summary.LastPaymentAt = &at
	case models.TxTypeRefund, models.TxTypeIyzicoRefund:
		if row.Amount.IsPositive() {
			at := row.CreatedAt
			summary.LastPaymentAt = &at
		}
	}
}
