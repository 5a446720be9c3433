package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannivo/walletd/pkg/models"
)

func TestAccumulateSpendRules(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	record := func(amount int64, txType, direction string) {
		t.Helper()
		_, err := s.Record(ctx, RecordParams{
			UserID:        userID,
			Amount:        decimal.NewFromInt(amount),
			Type:          txType,
			Currency:      "TRY",
			Direction:     direction,
			AllowNegative: true,
		})
		require.NoError(t, err)
	}

	record(100, models.TxTypePayment, models.DirectionCredit)
	record(50, models.TxTypeManualCredit, models.DirectionCredit)
	// Balance-only types never count as spend.
	record(30, models.TxTypePackagePurchase, models.DirectionDebit)
	record(20, models.TxTypeBookingCharge, models.DirectionDebit)
	// A refund is stored negative, so it must not bump the payment timestamp.
	record(10, models.TxTypeRefund, models.DirectionDebit)

	var summary models.AccountSummary
	require.NoError(t, s.DB().Where("user_id = ? AND currency = ?", userID, "TRY").First(&summary).Error)

	assert.True(t, summary.TotalSpent.Equal(decimal.NewFromInt(150)), "only payment and manual_credit count as spend, got %s", summary.TotalSpent)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(90)), "got %s", summary.Balance)
	require.NotNil(t, summary.LastPaymentAt)

	// The refund was the last row; LastPaymentAt must still point at the
	// manual credit before the balance-only rows.
	rows, _, err := s.Transactions(ctx, userID, "TRY", 50, 0)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Type == models.TxTypeRefund {
			assert.True(t, row.CreatedAt.After(*summary.LastPaymentAt) || row.CreatedAt.Equal(*summary.LastPaymentAt))
		}
	}
}

func TestRebuildMatchesIncrementalProjection(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	seed := []struct {
		amount    int64
		txType    string
		direction string
	}{
		{200, models.TxTypeDeposit, models.DirectionCredit},
		{80, models.TxTypePayment, models.DirectionCredit},
		{50, models.TxTypeWithdrawal, models.DirectionDebit},
		{25, models.TxTypeManualCredit, models.DirectionCredit},
		{10, models.TxTypeRefund, models.DirectionDebit},
	}
	for _, row := range seed {
		_, err := s.Record(ctx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(row.amount),
			Type:      row.txType,
			Currency:  "TRY",
			Direction: row.direction,
		})
		require.NoError(t, err)
	}

	var incremental models.AccountSummary
	require.NoError(t, s.DB().Where("user_id = ? AND currency = ?", userID, "TRY").First(&incremental).Error)

	// Corrupt the projection, then replay.
	require.NoError(t, s.DB().Model(&models.AccountSummary{}).
		Where("id = ?", incremental.ID).
		Updates(map[string]interface{}{"balance": "999999.00", "total_spent": "0.00"}).Error)

	results, err := s.Rebuild(ctx, userID, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "TRY", results[0].Currency)
	assert.Equal(t, len(seed), results[0].Transactions)

	var rebuilt models.AccountSummary
	require.NoError(t, s.DB().Where("user_id = ? AND currency = ?", userID, "TRY").First(&rebuilt).Error)

	assert.True(t, rebuilt.Balance.Equal(incremental.Balance), "replay %s vs incremental %s", rebuilt.Balance, incremental.Balance)
	assert.True(t, rebuilt.TotalSpent.Equal(incremental.TotalSpent), "replay %s vs incremental %s", rebuilt.TotalSpent, incremental.TotalSpent)

	sum, err := s.LedgerSum(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, rebuilt.Balance.Equal(sum))
}

func TestRebuildDryRunWritesNothing(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromInt(60),
		Type:      models.TxTypeDeposit,
		Currency:  "TRY",
		Direction: models.DirectionCredit,
	})
	require.NoError(t, err)

	require.NoError(t, s.DB().Model(&models.AccountSummary{}).
		Where("user_id = ? AND currency = ?", userID, "TRY").
		Update("balance", "123.00").Error)

	results, err := s.Rebuild(ctx, userID, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Balance.Equal(decimal.NewFromInt(60)), "dry run still computes, got %s", results[0].Balance)

	var summary models.AccountSummary
	require.NoError(t, s.DB().Where("user_id = ? AND currency = ?", userID, "TRY").First(&summary).Error)
	assert.True(t, summary.Balance.Equal(decimal.NewFromFloat(123.00)), "dry run must not write, got %s", summary.Balance)
}

func TestUserIDsWithTransactions(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	users := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range users {
		for i := 0; i < 2; i++ {
			_, err := s.Record(ctx, RecordParams{
				UserID:    id,
				Amount:    decimal.NewFromInt(5),
				Type:      models.TxTypeManualCredit,
				Currency:  "TRY",
				Direction: models.DirectionCredit,
			})
			require.NoError(t, err)
		}
	}

	ids, err := s.UserIDsWithTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, len(users))
}
