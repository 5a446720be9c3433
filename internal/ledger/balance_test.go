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

func TestBalanceUnknownUserIsZero(t *testing.T) {
	s := setupTestService(t)

	balance, err := s.Balance(context.Background(), uuid.New(), "TRY")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestBalanceAgreesWithLedgerSum(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	amounts := []struct {
		amount    int64
		direction string
		txType    string
	}{
		{120, models.DirectionCredit, models.TxTypeDeposit},
		{30, models.DirectionDebit, models.TxTypeWithdrawal},
		{55, models.DirectionCredit, models.TxTypePayment},
		{15, models.DirectionDebit, models.TxTypeRefund},
	}
	for _, a := range amounts {
		_, err := s.Record(ctx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(a.amount),
			Type:      a.txType,
			Currency:  "TRY",
			Direction: a.direction,
		})
		require.NoError(t, err)
	}

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	sum, err := s.LedgerSum(ctx, userID, "TRY")
	require.NoError(t, err)

	assert.True(t, balance.Equal(sum), "projection %s must equal replayed sum %s", balance, sum)
	assert.True(t, balance.Equal(decimal.NewFromInt(130)), "got %s", balance)
}

func TestBalancesPerCurrency(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	for currency, amount := range map[string]int64{"TRY": 100, "EUR": 40, "USD": 7} {
		_, err := s.Record(ctx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(amount),
			Type:      models.TxTypeDeposit,
			Currency:  currency,
			Direction: models.DirectionCredit,
		})
		require.NoError(t, err)
	}

	balances, err := s.Balances(ctx, userID)
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.True(t, balances["TRY"].Equal(decimal.NewFromInt(100)))
	assert.True(t, balances["EUR"].Equal(decimal.NewFromInt(40)))
	assert.True(t, balances["USD"].Equal(decimal.NewFromInt(7)))
}
