package wallet

import (
	"context"
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

// RequestWithdrawalParams describes a new withdrawal request.
type RequestWithdrawalParams struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	PayoutMethodID *uuid.UUID
}

// RequestWithdrawal validates the balance against the ledger (never the
// client-supplied figure) and persists a pending request. Funds do not move
// here.
func (s *Service) RequestWithdrawal(ctx context.Context, params RequestWithdrawalParams) (*models.WithdrawalRequest, error) {
	if !params.Amount.IsPositive() {
		return nil, werr.NewValidation("amount", "must be positive")
	}
	if params.Currency == "" {
		return nil, werr.NewValidation("currency", "is required")
	}

	amount := params.Amount.Round(2)
	currency := strings.ToUpper(params.Currency)

	balance, err := s.ledger.Balance(ctx, params.UserID, currency)
	if err != nil {
		return nil, werr.NewPersistence("load balance", err)
	}
	if balance.LessThan(amount) {
		return nil, werr.NewValidation("amount",
			fmt.Sprintf("insufficient balance: %s %s available, %s requested",
				balance.StringFixed(2), currency, amount.StringFixed(2)))
	}

	if params.PayoutMethodID != nil {
		var method models.PayoutMethod
		err := s.db.WithContext(ctx).
			Where("id = ? AND user_id = ? AND active = ?", params.PayoutMethodID, params.UserID, true).
			First(&method).Error
		if err == gorm.ErrRecordNotFound {
			return nil, werr.NewValidation("payout_method_id", "unknown or inactive payout method")
		}
		if err != nil {
			return nil, werr.NewPersistence("load payout method", err)
		}
	}

	req := &models.WithdrawalRequest{
		ID:             uuid.New(),
		UserID:         params.UserID,
		Amount:         amount,
		Currency:       currency,
		PayoutMethodID: params.PayoutMethodID,
		Status:         models.WithdrawalStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, werr.NewPersistence("create withdrawal request", err)
	}

	metrics.WorkflowTransitions.WithLabelValues("withdrawal", models.WithdrawalStatusPending).Inc()
	s.logger.Info("withdrawal requested",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency))
	return req, nil
}

// ApproveWithdrawal moves a pending request to approved. Funds still do not
// move; only finalization does that.
func (s *Service) ApproveWithdrawal(ctx context.Context, requestID uuid.UUID, approverID *uuid.UUID, autoApproved bool) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", requestID).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return werr.NewValidation("request_id", "withdrawal request not found")
			}
			return werr.NewPersistence("load withdrawal request", err)
		}
		if req.Status != models.WithdrawalStatusPending {
			return werr.NewConflict("withdrawal request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		req.Status = models.WithdrawalStatusApproved
		req.ApproverID = approverID
		req.AutoApproved = autoApproved
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.WorkflowTransitions.WithLabelValues("withdrawal", models.WithdrawalStatusApproved).Inc()
	return &req, nil
}

// RejectWithdrawal moves a pending request to rejected. No ledger entry.
func (s *Service) RejectWithdrawal(ctx context.Context, requestID uuid.UUID, processorID *uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", requestID).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return werr.NewValidation("request_id", "withdrawal request not found")
			}
			return werr.NewPersistence("load withdrawal request", err)
		}
		if req.Status != models.WithdrawalStatusPending {
			return werr.NewConflict("withdrawal request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		req.Status = models.WithdrawalStatusRejected
		req.FailureReason = reason
		req.ProcessorID = processorID
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.WorkflowTransitions.WithLabelValues("withdrawal", models.WithdrawalStatusRejected).Inc()
	return &req, nil
}

// FinalizeWithdrawal settles an approved request. On success the status
// transition and the ledger debit commit atomically; on failure the request
// is marked failed and the ledger is untouched. Funds only ever leave on
// confirmed success.
func (s *Service) FinalizeWithdrawal(ctx context.Context, requestID uuid.UUID, processorID *uuid.UUID, success bool, metadata models.Metadata) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("id = ?", requestID).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return werr.NewValidation("request_id", "withdrawal request not found")
			}
			return werr.NewPersistence("load withdrawal request", err)
		}
		if req.Status != models.WithdrawalStatusApproved {
			return werr.NewConflict("withdrawal request", fmt.Sprintf("%s is %s", req.ID, req.Status))
		}

		if metadata != nil {
			merged := req.Metadata.Clone()
			for k, v := range metadata {
				merged[k] = v
			}
			req.Metadata = merged
		}
		req.ProcessorID = processorID

		if !success {
			req.Status = models.WithdrawalStatusFailed
			if reason, ok := metadata["reason"].(string); ok {
				req.FailureReason = reason
			}
			return tx.Save(&req).Error
		}

		now := time.Now().UTC()
		req.Status = models.WithdrawalStatusCompleted
		req.CompletedAt = &now
		if err := tx.Save(&req).Error; err != nil {
			return werr.NewPersistence("update withdrawal request", err)
		}

		_, err := s.ledger.RecordTx(ctx, tx, ledger.RecordParams{
			UserID:          req.UserID,
			Amount:          req.Amount,
			Type:            models.TxTypeWithdrawal,
			Currency:        req.Currency,
			Status:          models.TxStatusCompleted,
			Direction:       models.DirectionDebit,
			Description:     "Withdrawal payout",
			ReferenceNumber: "withdrawal:" + req.ID.String(),
			Metadata:        models.Metadata{"withdrawalRequestId": req.ID.String()},
			CreatedBy:       processorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if success {
		s.ledger.InvalidateBalance(ctx, req.UserID, req.Currency)
	}
	status := models.WithdrawalStatusFailed
	if success {
		status = models.WithdrawalStatusCompleted
	}
	metrics.WorkflowTransitions.WithLabelValues("withdrawal", status).Inc()
	s.logger.Info("withdrawal finalized",
		zap.String("request_id", req.ID.String()),
		zap.Bool("success", success))
	return &req, nil
}

// Withdrawals lists a user's withdrawal requests, newest first.
func (s *Service) Withdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.WithdrawalRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawal requests: %w", err)
	}
	var rows []*models.WithdrawalRequest
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	return rows, total, nil
}
