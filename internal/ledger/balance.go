package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/plannivo/walletd/pkg/models"
)

// Balance returns the user's balance for one currency. The lookup order is
// cache, projection row, ledger sum; the ledger remains authoritative and
// the projection is kept consistent with it on every Record.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)

	if s.cache != nil {
		if balance, ok := s.cache.Get(ctx, userID, currency); ok {
			return balance, nil
		}
	}

	var summary models.AccountSummary
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&summary).Error
	switch {
	case err == nil:
		if s.cache != nil {
			s.cache.Set(ctx, userID, currency, summary.Balance)
		}
		return summary.Balance, nil
	case err == gorm.ErrRecordNotFound:
		return s.LedgerSum(ctx, userID, currency)
	default:
		return decimal.Zero, fmt.Errorf("failed to load account summary: %w", err)
	}
}

// Balances returns every per-currency balance the user holds.
func (s *Service) Balances(ctx context.Context, userID uuid.UUID) (map[string]decimal.Decimal, error) {
	var summaries []models.AccountSummary
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("failed to load account summaries: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(summaries))
	for _, summary := range summaries {
		out[summary.Currency] = summary.Balance
	}
	return out, nil
}

// LedgerSum computes the authoritative balance: the signed sum of completed
// transactions for (user, currency).
func (s *Service) LedgerSum(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND currency = ? AND status = ?", userID, strings.ToUpper(currency), models.TxStatusCompleted).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return result.Total.Round(2), nil
}

// InvalidateBalance drops the cached balance after an out-of-band write,
// e.g. a workflow that posted a ledger entry through RecordTx.
func (s *Service) InvalidateBalance(ctx context.Context, userID uuid.UUID, currency string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID, strings.ToUpper(currency))
	}
}
