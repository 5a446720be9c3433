package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/models"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One in-memory database, one writer at a time.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Transaction{}, &models.AccountSummary{}))

	svc, err := NewService(zap.NewNop(), db, nil)
	require.NoError(t, err)
	return svc
}

func TestRecordCreditAndDebit(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	credit, err := s.Record(ctx, RecordParams{
		UserID:          userID,
		Amount:          decimal.NewFromFloat(100.00),
		Type:            models.TxTypePayment,
		Currency:        "try",
		Direction:       models.DirectionCredit,
		ReferenceNumber: "pay-1",
	})
	require.NoError(t, err)
	assert.True(t, credit.Amount.Equal(decimal.NewFromFloat(100.00)))
	assert.Equal(t, "TRY", credit.Currency)
	assert.Equal(t, models.TxStatusCompleted, credit.Status)

	debit, err := s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromFloat(40.00),
		Type:      models.TxTypeManualDebit,
		Currency:  "TRY",
		Direction: models.DirectionDebit,
	})
	require.NoError(t, err)
	assert.True(t, debit.Amount.Equal(decimal.NewFromFloat(-40.00)), "debits are stored negative, got %s", debit.Amount)

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(60.00)), "got %s", balance)
}

func TestRecordValidation(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params RecordParams
	}{
		{"zero amount", RecordParams{UserID: uuid.New(), Type: models.TxTypePayment, Currency: "TRY", Direction: models.DirectionCredit}},
		{"bad direction", RecordParams{UserID: uuid.New(), Amount: decimal.NewFromInt(1), Type: models.TxTypePayment, Currency: "TRY", Direction: "sideways"}},
		{"missing currency", RecordParams{UserID: uuid.New(), Amount: decimal.NewFromInt(1), Type: models.TxTypePayment, Direction: models.DirectionCredit}},
		{"unknown type", RecordParams{UserID: uuid.New(), Amount: decimal.NewFromInt(1), Type: "teleport", Currency: "TRY", Direction: models.DirectionCredit}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Record(ctx, tc.params)
			assert.True(t, werr.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestRecordDuplicateReference(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	params := RecordParams{
		UserID:          userID,
		Amount:          decimal.NewFromInt(50),
		Type:            models.TxTypePayment,
		Currency:        "EUR",
		Direction:       models.DirectionCredit,
		ReferenceNumber: "ref-42",
	}
	_, err := s.Record(ctx, params)
	require.NoError(t, err)

	_, err = s.Record(ctx, params)
	assert.True(t, werr.IsConflict(err), "expected conflict, got %v", err)

	// The same reference under a different type is a distinct operation.
	params.Type = models.TxTypeRefund
	params.Direction = models.DirectionDebit
	_, err = s.Record(ctx, params)
	require.NoError(t, err)

	balance, err := s.Balance(ctx, userID, "EUR")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "got %s", balance)
}

func TestRecordReferencelessRowsNeverCollide(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(10),
			Type:      models.TxTypeManualCredit,
			Currency:  "TRY",
			Direction: models.DirectionCredit,
		})
		require.NoError(t, err)
	}

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(30)), "got %s", balance)
}

func TestRecordNegativeBalanceGuard(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromInt(20),
		Type:      models.TxTypeDeposit,
		Currency:  "TRY",
		Direction: models.DirectionCredit,
	})
	require.NoError(t, err)

	_, err = s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromInt(30),
		Type:      models.TxTypeManualDebit,
		Currency:  "TRY",
		Direction: models.DirectionDebit,
	})
	assert.True(t, werr.IsValidation(err), "expected validation error, got %v", err)

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(20)), "failed debit must not move the balance, got %s", balance)

	_, err = s.Record(ctx, RecordParams{
		UserID:        userID,
		Amount:        decimal.NewFromInt(30),
		Type:          models.TxTypeRefund,
		Currency:      "TRY",
		Direction:     models.DirectionDebit,
		AllowNegative: true,
	})
	require.NoError(t, err)

	balance, err = s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(-10)), "got %s", balance)
}

func TestRecordPendingDoesNotAffectBalance(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromInt(500),
		Type:      models.TxTypeDeposit,
		Currency:  "TRY",
		Direction: models.DirectionCredit,
		Status:    models.TxStatusPending,
	})
	require.NoError(t, err)

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "pending rows must not count, got %s", balance)

	sum, err := s.LedgerSum(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, sum.IsZero(), "got %s", sum)
}

func TestConcurrentDuplicateRecords(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	n := 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicted := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Record(ctx, RecordParams{
				UserID:          userID,
				Amount:          decimal.NewFromInt(100),
				Type:            models.TxTypePayment,
				Currency:        "TRY",
				Direction:       models.DirectionCredit,
				ReferenceNumber: "webhook-once",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case werr.IsConflict(err):
				conflicted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicted)

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "exactly one credit must land, got %s", balance)
}

func TestRecordTxRollsBackWithCaller(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	sentinel := werr.NewValidation("test", "forced rollback")
	err := s.DB().Transaction(func(tx *gorm.DB) error {
		if _, err := s.RecordTx(ctx, tx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(75),
			Type:      models.TxTypeDeposit,
			Currency:  "TRY",
			Direction: models.DirectionCredit,
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	balance, err := s.Balance(ctx, userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "rolled-back credit must not persist, got %s", balance)

	var count int64
	require.NoError(t, s.DB().Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransactionsPagination(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, RecordParams{
			UserID:    userID,
			Amount:    decimal.NewFromInt(int64(i + 1)),
			Type:      models.TxTypeManualCredit,
			Currency:  "TRY",
			Direction: models.DirectionCredit,
		})
		require.NoError(t, err)
	}
	_, err := s.Record(ctx, RecordParams{
		UserID:    userID,
		Amount:    decimal.NewFromInt(9),
		Type:      models.TxTypeManualCredit,
		Currency:  "EUR",
		Direction: models.DirectionCredit,
	})
	require.NoError(t, err)

	rows, total, err := s.Transactions(ctx, userID, "TRY", 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, rows, 2)

	all, total, err := s.Transactions(ctx, userID, "", 50, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	assert.Len(t, all, 6)
}
