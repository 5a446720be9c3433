package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/plannivo/walletd/internal/ledger"
	werr "github.com/plannivo/walletd/pkg/errors"
	"github.com/plannivo/walletd/pkg/metrics"
	"github.com/plannivo/walletd/pkg/models"
)

// CreateDepositParams describes a new deposit request.
type CreateDepositParams struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Method        string
	BankAccountID *uuid.UUID
	Notes         string
	// AutoComplete settles the request and posts the ledger credit in the
	// same operation. Only the cash/admin path may set it.
	AutoComplete bool
}

// CreateDepositResult is the request plus, for hosted-checkout methods, the
// URL the user must be redirected to.
type CreateDepositResult struct {
	Request     *models.DepositRequest
	RedirectURL string
}

// CreateDeposit validates method-specific preconditions, persists a pending
// request, and for gateway methods initiates the external payment first so
// a gateway failure never leaves local state behind.
func (s *Service) CreateDeposit(ctx context.Context, params CreateDepositParams) (*CreateDepositResult, error) {
	if !params.Amount.IsPositive() {
		return nil, werr.NewValidation("amount", "must be positive")
	}
	if params.Currency == "" {
		return nil, werr.NewValidation("currency", "is required")
	}

	req := &models.DepositRequest{
		ID:          uuid.New(),
		UserID:      params.UserID,
		Amount:      params.Amount.Round(2),
		Currency:    strings.ToUpper(params.Currency),
		Method:      params.Method,
		Status:      models.DepositStatusPending,
		InitiatedBy: s.actors.FromContext(ctx),
		CreatedAt:   time.Now().UTC(),
	}
	if params.Notes != "" {
		req.Metadata = models.Metadata{"notes": params.Notes}
	}

	result := &CreateDepositResult{Request: req}

	switch params.Method {
	case models.DepositMethodBankTransfer:
		if params.BankAccountID == nil {
			return nil, werr.NewValidation("bank_account_id", "is required for bank transfers")
		}
		var account models.BankAccount
		err := s.db.WithContext(ctx).Where("id = ? AND active = ?", params.BankAccountID, true).First(&account).Error
		if err == gorm.ErrRecordNotFound {
			return nil, werr.NewValidation("bank_account_id", "unknown or inactive bank account")
		}
		if err != nil {
			return nil, werr.NewPersistence("load bank account", err)
		}
		req.BankAccountID = params.BankAccountID
		req.ReferenceCode = newReferenceCode()

	case models.DepositMethodCard:
		if s.card == nil {
			return nil, werr.NewValidation("method", "card deposits are not configured")
		}
		intentID, err := s.card.CreateIntent(ctx, params.UserID, req.Amount, req.Currency, req.ID.String())
		if err != nil {
			return nil, err
		}
		req.Gateway = "stripe"
		req.GatewayTransactionID = intentID

	case models.DepositMethodBinancePay:
		if s.redirect == nil {
			return nil, werr.NewValidation("method", "binance pay deposits are not configured")
		}
		orderID, redirectURL, err := s.redirect.CreateOrder(ctx, params.UserID, req.Amount, req.Currency, req.ID.String())
		if err != nil {
			return nil, err
		}
		req.Gateway = "binance_pay"
		req.GatewayTransactionID = orderID
		result.RedirectURL = redirectURL

	case models.DepositMethodCash:
		// Admin-recorded cash deposit; settles immediately below.
		params.AutoComplete = true

	default:
		return nil, werr.NewValidation("method", fmt.Sprintf("unsupported deposit method %q", params.Method))
	}

	if params.AutoComplete {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := time.Now().UTC()
			req.Status = models.DepositStatusCompleted
			req.CompletedAt = &now
			req.ProcessedBy = req.InitiatedBy
			if err := tx.Create(req).Error; err != nil {
				return werr.NewPersistence("create deposit request", err)
			}
			_, err := s.ledger.RecordTx(ctx, tx, s.depositCredit(req))
			return err
		})
		if err != nil {
			return nil, err
		}
		s.ledger.InvalidateBalance(ctx, req.UserID, req.Currency)
		metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusCompleted).Inc()
		s.logger.Info("deposit auto-completed",
			zap.String("request_id", req.ID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.String("amount", req.Amount.StringFixed(2)),
			zap.String("currency", req.Currency))
		return result, nil
	}

	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, werr.NewPersistence("create deposit request", err)
	}
	metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusPending).Inc()
	return result, nil
}

// ApproveDeposit settles a pending request after manual review. The status
// transition and the ledger credit commit atomically: either the request is
// completed and the credit exists, or neither happened. Approving a settled
// request is a conflict, never a second credit.
func (s *Service) ApproveDeposit(ctx context.Context, requestID uuid.UUID, processorID *uuid.UUID, verification string) (*models.DepositRequest, error) {
	var req models.DepositRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", requestID).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return werr.NewValidation("request_id", "deposit request not found")
			}
			return werr.NewPersistence("load deposit request", err)
		}
		if req.Status != models.DepositStatusPending {
			return werr.NewConflict("deposit request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		now := time.Now().UTC()
		req.Status = models.DepositStatusCompleted
		req.CompletedAt = &now
		req.ProcessedBy = processorID
		req.Verification = verification
		if err := tx.Save(&req).Error; err != nil {
			return werr.NewPersistence("update deposit request", err)
		}

		params := s.depositCredit(&req)
		params.CreatedBy = processorID
		_, err := s.ledger.RecordTx(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateBalance(ctx, req.UserID, req.Currency)
	metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusCompleted).Inc()
	s.logger.Info("deposit approved",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()))
	return &req, nil
}

// RejectDeposit moves a pending request to rejected. No ledger entry is
// produced.
func (s *Service) RejectDeposit(ctx context.Context, requestID uuid.UUID, processorID *uuid.UUID, reason string) (*models.DepositRequest, error) {
	var req models.DepositRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", requestID).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return werr.NewValidation("request_id", "deposit request not found")
			}
			return werr.NewPersistence("load deposit request", err)
		}
		if req.Status != models.DepositStatusPending {
			return werr.NewConflict("deposit request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		req.Status = models.DepositStatusRejected
		req.FailureReason = reason
		req.ProcessedBy = processorID
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusRejected).Inc()
	s.logger.Info("deposit rejected",
		zap.String("request_id", req.ID.String()),
		zap.String("reason", reason))
	return &req, nil
}

// CompleteDepositByGatewayRef settles the pending request that initiated a
// gateway payment, keyed by the gateway's transaction id. Webhook adapters
// call it; repeat deliveries find the request already completed and no-op.
func (s *Service) CompleteDepositByGatewayRef(ctx context.Context, gateway, gatewayTxID string, metadata models.Metadata) (*models.DepositRequest, bool, error) {
	var req models.DepositRequest
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).
			Where("gateway = ? AND gateway_transaction_id = ?", gateway, gatewayTxID).
			First(&req).Error
		if err == gorm.ErrRecordNotFound {
			return werr.NewValidation("gateway_transaction_id", fmt.Sprintf("no deposit request for %s/%s", gateway, gatewayTxID))
		}
		if err != nil {
			return werr.NewPersistence("load deposit request", err)
		}
		if req.Status == models.DepositStatusCompleted {
			return nil // already settled by an earlier delivery
		}
		if req.Terminal() {
			return werr.NewConflict("deposit request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		now := time.Now().UTC()
		req.Status = models.DepositStatusCompleted
		req.CompletedAt = &now
		req.ProcessedBy = s.actors.System()
		if metadata != nil {
			merged := req.Metadata.Clone()
			for k, v := range metadata {
				merged[k] = v
			}
			req.Metadata = merged
		}
		if err := tx.Save(&req).Error; err != nil {
			return werr.NewPersistence("update deposit request", err)
		}

		params := s.depositCredit(&req)
		params.ReferenceNumber = gatewayTxID
		params.CreatedBy = s.actors.System()
		if _, err := s.ledger.RecordTx(ctx, tx, params); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		s.ledger.InvalidateBalance(ctx, req.UserID, req.Currency)
		metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusCompleted).Inc()
	}
	return &req, applied, nil
}

// FailDeposit marks a gateway-initiated request failed (capture failed,
// order expired). No ledger entry.
func (s *Service) FailDeposit(ctx context.Context, gateway, gatewayTxID, reason string) (*models.DepositRequest, error) {
	var req models.DepositRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).
			Where("gateway = ? AND gateway_transaction_id = ?", gateway, gatewayTxID).
			First(&req).Error
		if err == gorm.ErrRecordNotFound {
			return werr.NewValidation("gateway_transaction_id", fmt.Sprintf("no deposit request for %s/%s", gateway, gatewayTxID))
		}
		if err != nil {
			return werr.NewPersistence("load deposit request", err)
		}
		if req.Terminal() {
			return nil // nothing to do; terminal states never regress
		}

		req.Status = models.DepositStatusFailed
		req.FailureReason = reason
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}
	metrics.WorkflowTransitions.WithLabelValues("deposit", models.DepositStatusFailed).Inc()
	return &req, nil
}

// Deposits lists a user's deposit requests, newest first.
func (s *Service) Deposits(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.DepositRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.DepositRequest{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deposit requests: %w", err)
	}
	var rows []*models.DepositRequest
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deposit requests: %w", err)
	}
	return rows, total, nil
}

// depositCredit builds the ledger credit for a settled request. The
// request id doubles as the idempotency reference so the credit can never
// be posted twice for one request.
func (s *Service) depositCredit(req *models.DepositRequest) ledger.RecordParams {
	return ledger.RecordParams{
		UserID:          req.UserID,
		Amount:          req.Amount,
		Type:            models.TxTypeDeposit,
		Currency:        req.Currency,
		Status:          models.TxStatusCompleted,
		Direction:       models.DirectionCredit,
		Description:     fmt.Sprintf("Deposit via %s", req.Method),
		ReferenceNumber: "deposit:" + req.ID.String(),
		Metadata:        models.Metadata{"depositRequestId": req.ID.String(), "method": req.Method},
	}
}

func newReferenceCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(uuid.New().String()[:8])
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
