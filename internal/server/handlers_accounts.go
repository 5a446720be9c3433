package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/plannivo/walletd/internal/ledger"
	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/models"
)

// handleGetBalances returns the per-currency balances for a user. With a
// currency query parameter only that balance is returned.
func (s *Server) handleGetBalances(c *gin.Context) {
	userID, ok := s.pathID(c, "user_id")
	if !ok {
		return
	}
	if currency := c.Query("currency"); currency != "" {
		balance, err := s.ledgerSvc.Balance(c.Request.Context(), userID, currency)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"currency": currency, "balance": balance})
		return
	}
	balances, err := s.ledgerSvc.Balances(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// handleGetTransactions returns the transaction history for a user, newest
// first, optionally filtered by currency.
func (s *Server) handleGetTransactions(c *gin.Context) {
	userID, ok := s.pathID(c, "user_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	transactions, total, err := s.ledgerSvc.Transactions(c.Request.Context(), userID, c.Query("currency"), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "total": total})
}

type adjustmentRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Currency        string          `json:"currency" validate:"required"`
	Direction       string          `json:"direction" validate:"required,oneof=credit debit"`
	Description     string          `json:"description,omitempty" validate:"omitempty,max=500"`
	ReferenceNumber string          `json:"reference_number,omitempty" validate:"omitempty,max=255"`
	AllowNegative   bool            `json:"allow_negative"`
	Metadata        models.Metadata `json:"metadata,omitempty"`
}

// handleManualAdjustment posts an operator credit or debit straight to the
// ledger. The standard guards apply: idempotency when a reference number is
// supplied, the negative-balance check unless allow_negative is set.
func (s *Server) handleManualAdjustment(c *gin.Context) {
	userID, ok := s.pathID(c, "user_id")
	if !ok {
		return
	}
	var body adjustmentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}

	txType := models.TxTypeManualCredit
	if body.Direction == models.DirectionDebit {
		txType = models.TxTypeManualDebit
	}

	tx, err := s.ledgerSvc.Record(c.Request.Context(), ledger.RecordParams{
		UserID:          userID,
		Amount:          body.Amount,
		Type:            txType,
		Currency:        body.Currency,
		Direction:       body.Direction,
		Description:     body.Description,
		ReferenceNumber: body.ReferenceNumber,
		Metadata:        body.Metadata,
		CreatedBy:       s.actorID(c),
		AllowNegative:   body.AllowNegative,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// handleRebuildAccount replays the user's completed transactions and
// rewrites the balance projection. With dry_run=true it only reports the
// deltas.
func (s *Server) handleRebuildAccount(c *gin.Context) {
	userID, ok := s.pathID(c, "user_id")
	if !ok {
		return
	}
	dryRun := c.Query("dry_run") == "true"
	results, err := s.ledgerSvc.Rebuild(c.Request.Context(), userID, dryRun)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "dry_run": dryRun})
}
