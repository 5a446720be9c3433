package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plannivo/walletd/internal/wallet"
	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/models"
)

type createDepositRequest struct {
	UserID        string          `json:"user_id" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Currency      string          `json:"currency" validate:"required"`
	Method        string          `json:"method" validate:"required,oneof=bank_transfer card binance_pay cash"`
	BankAccountID string          `json:"bank_account_id,omitempty" validate:"omitempty,uuid"`
	Notes         string          `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// handleCreateDeposit opens a deposit request via one of the supported
// methods. Gateway methods return a redirect URL or intent id alongside
// the pending request.
func (s *Server) handleCreateDeposit(c *gin.Context) {
	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.writeError(c, werr.NewValidation("user_id", "must be a UUID"))
		return
	}

	params := wallet.CreateDepositParams{
		UserID:   userID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   req.Method,
		Notes:    req.Notes,
	}
	if req.BankAccountID != "" {
		id, err := uuid.Parse(req.BankAccountID)
		if err != nil {
			s.writeError(c, werr.NewValidation("bank_account_id", "must be a UUID"))
			return
		}
		params.BankAccountID = &id
	}

	result, err := s.walletSvc.CreateDeposit(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := gin.H{"request": result.Request}
	if result.RedirectURL != "" {
		resp["redirect_url"] = result.RedirectURL
	}
	c.JSON(http.StatusCreated, resp)
}

// handleListDeposits lists deposit requests for a user.
func (s *Server) handleListDeposits(c *gin.Context) {
	userID, ok := s.queryUserID(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	requests, total, err := s.walletSvc.Deposits(c.Request.Context(), userID, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "total": total})
}

type processRequest struct {
	Verification string `json:"verification,omitempty" validate:"omitempty,max=500"`
	Reason       string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// handleApproveDeposit settles a pending deposit and credits the ledger.
func (s *Server) handleApproveDeposit(c *gin.Context) {
	requestID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var body processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, werr.NewValidation("body", err.Error()))
			return
		}
	}
	req, err := s.walletSvc.ApproveDeposit(c.Request.Context(), requestID, s.actorID(c), body.Verification)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// handleRejectDeposit rejects a pending deposit. No funds move.
func (s *Server) handleRejectDeposit(c *gin.Context) {
	requestID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var body processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, werr.NewValidation("body", err.Error()))
			return
		}
	}
	req, err := s.walletSvc.RejectDeposit(c.Request.Context(), requestID, s.actorID(c), body.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

type adminDepositRequest struct {
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Currency     string          `json:"currency" validate:"required"`
	Method       string          `json:"method,omitempty" validate:"omitempty,oneof=bank_transfer card binance_pay cash"`
	Notes        string          `json:"notes,omitempty" validate:"omitempty,max=500"`
	AutoComplete bool            `json:"autoComplete"`
}

// handleAdminDeposit records a deposit on behalf of a user, typically a
// cash payment taken at the desk. autoComplete settles it immediately.
func (s *Server) handleAdminDeposit(c *gin.Context) {
	userID, ok := s.pathID(c, "user_id")
	if !ok {
		return
	}
	var body adminDepositRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	method := body.Method
	if method == "" {
		method = models.DepositMethodCash
	}

	result, err := s.walletSvc.CreateDeposit(c.Request.Context(), wallet.CreateDepositParams{
		UserID:       userID,
		Amount:       body.Amount,
		Currency:     body.Currency,
		Method:       method,
		Notes:        body.Notes,
		AutoComplete: body.AutoComplete,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": result.Request})
}

type requestWithdrawalRequest struct {
	UserID         string          `json:"user_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Currency       string          `json:"currency" validate:"required"`
	PayoutMethodID string          `json:"payout_method_id,omitempty" validate:"omitempty,uuid"`
}

// handleRequestWithdrawal opens a withdrawal request after checking the
// ledger balance. Funds move only at finalization.
func (s *Server) handleRequestWithdrawal(c *gin.Context) {
	var req requestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		s.writeError(c, werr.NewValidation("user_id", "must be a UUID"))
		return
	}

	params := wallet.RequestWithdrawalParams{
		UserID:   userID,
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if req.PayoutMethodID != "" {
		id, err := uuid.Parse(req.PayoutMethodID)
		if err != nil {
			s.writeError(c, werr.NewValidation("payout_method_id", "must be a UUID"))
			return
		}
		params.PayoutMethodID = &id
	}

	wr, err := s.walletSvc.RequestWithdrawal(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": wr})
}

// handleListWithdrawals lists withdrawal requests for a user.
func (s *Server) handleListWithdrawals(c *gin.Context) {
	userID, ok := s.queryUserID(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	requests, total, err := s.walletSvc.Withdrawals(c.Request.Context(), userID, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "total": total})
}

// handleApproveWithdrawal moves a pending withdrawal to approved. No funds
// move until finalization reports the payout outcome.
func (s *Server) handleApproveWithdrawal(c *gin.Context) {
	requestID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	req, err := s.walletSvc.ApproveWithdrawal(c.Request.Context(), requestID, s.actorID(c), false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// handleRejectWithdrawal rejects a pending withdrawal.
func (s *Server) handleRejectWithdrawal(c *gin.Context) {
	requestID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var body processRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			s.writeError(c, werr.NewValidation("body", err.Error()))
			return
		}
	}
	req, err := s.walletSvc.RejectWithdrawal(c.Request.Context(), requestID, s.actorID(c), body.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

type finalizeWithdrawalRequest struct {
	Success  bool            `json:"success"`
	Metadata models.Metadata `json:"metadata,omitempty"`
}

// handleFinalizeWithdrawal records the payout outcome for an approved
// withdrawal. Success debits the ledger; failure leaves the balance intact.
func (s *Server) handleFinalizeWithdrawal(c *gin.Context) {
	requestID, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var body finalizeWithdrawalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	req, err := s.walletSvc.FinalizeWithdrawal(c.Request.Context(), requestID, s.actorID(c), body.Success, body.Metadata)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// pathID parses a UUID path parameter, writing a 400 on failure.
func (s *Server) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		s.writeError(c, werr.NewValidation(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// queryUserID parses the required user_id query parameter.
func (s *Server) queryUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		s.writeError(c, werr.NewValidation("user_id", "is required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(c, werr.NewValidation("user_id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// actorID returns the validated actor id from the request, or nil.
func (s *Server) actorID(c *gin.Context) *uuid.UUID {
	raw := c.GetHeader("X-Actor-ID")
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
