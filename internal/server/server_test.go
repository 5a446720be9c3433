package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/plannivo/walletd/internal/actor"
	"github.com/plannivo/walletd/internal/gateway"
	"github.com/plannivo/walletd/internal/ledger"
	"github.com/plannivo/walletd/internal/wallet"
	"github.com/plannivo/walletd/pkg/models"
)

type serverFixture struct {
	db     *gorm.DB
	ledger *ledger.Service
	router *gin.Engine
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Transaction{}, &models.AccountSummary{},
		&models.DepositRequest{}, &models.WithdrawalRequest{},
		&models.BankAccount{}, &models.PayoutMethod{},
		&models.PaymentIntent{}, &models.Refund{}, &models.Booking{},
	))

	logger := zap.NewNop()
	actors := actor.NewResolver(logger, uuid.New().String())
	ledgerSvc, err := ledger.NewService(logger, db, nil)
	require.NoError(t, err)
	walletSvc, err := wallet.NewService(logger, db, ledgerSvc, actors, nil, nil)
	require.NoError(t, err)
	reconciler := gateway.NewReconciler(logger, db, ledgerSvc, walletSvc, actors)

	srv := NewServer(logger, ledgerSvc, walletSvc, reconciler, nil, nil, nil)
	return &serverFixture{db: db, ledger: ledgerSvc, router: srv.Router()}
}

func (f *serverFixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := setupServer(t)
	rec := f.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminDepositAutoComplete(t *testing.T) {
	f := setupServer(t)
	userID := uuid.New()

	rec := f.request(t, http.MethodPost, "/api/v1/wallet/admin/deposit/"+userID.String(), gin.H{
		"amount":       100,
		"currency":     "EUR",
		"method":       "cash",
		"autoComplete": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	balance, err := f.ledger.Balance(context.Background(), userID, "EUR")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "got %s", balance)
}

func TestManualAdjustmentAndErrorMapping(t *testing.T) {
	f := setupServer(t)
	userID := uuid.New()
	base := "/api/v1/accounts/" + userID.String()

	// Credit.
	rec := f.request(t, http.MethodPost, base+"/adjustments", gin.H{
		"amount":           50,
		"currency":         "TRY",
		"direction":        "credit",
		"reference_number": "adj-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Duplicate reference maps to 409.
	rec = f.request(t, http.MethodPost, base+"/adjustments", gin.H{
		"amount":           50,
		"currency":         "TRY",
		"direction":        "credit",
		"reference_number": "adj-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// Overdraft maps to 400.
	rec = f.request(t, http.MethodPost, base+"/adjustments", gin.H{
		"amount":    500,
		"currency":  "TRY",
		"direction": "debit",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Balance endpoint reflects the single applied credit.
	rec = f.request(t, http.MethodGet, base+"/balances?currency=TRY", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(50)), "got %s", resp.Balance)
}

func TestWithdrawalRoutes(t *testing.T) {
	f := setupServer(t)
	userID := uuid.New()

	// Seed a balance through the admin deposit route.
	rec := f.request(t, http.MethodPost, "/api/v1/wallet/admin/deposit/"+userID.String(), gin.H{
		"amount":   200,
		"currency": "TRY",
		"method":   "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.request(t, http.MethodPost, "/api/v1/wallet/withdrawals", gin.H{
		"user_id":  userID.String(),
		"amount":   120,
		"currency": "TRY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Request models.WithdrawalRequest `json:"request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	id := created.Request.ID.String()
	rec = f.request(t, http.MethodPost, "/api/v1/wallet/withdrawals/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.request(t, http.MethodPost, "/api/v1/wallet/withdrawals/"+id+"/finalize", gin.H{"success": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	balance, err := f.ledger.Balance(context.Background(), userID, "TRY")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(80)), "got %s", balance)

	// Finalizing a settled request maps to 409.
	rec = f.request(t, http.MethodPost, "/api/v1/wallet/withdrawals/"+id+"/finalize", gin.H{"success": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInsufficientWithdrawalIs400(t *testing.T) {
	f := setupServer(t)

	rec := f.request(t, http.MethodPost, "/api/v1/wallet/withdrawals", gin.H{
		"user_id":  uuid.New().String(),
		"amount":   10,
		"currency": "TRY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestUnconfiguredWebhookRejected(t *testing.T) {
	f := setupServer(t)

	rec := f.request(t, http.MethodPost, "/webhooks/stripe", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadUUIDIs400(t *testing.T) {
	f := setupServer(t)

	rec := f.request(t, http.MethodGet, "/api/v1/accounts/not-a-uuid/balances", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
