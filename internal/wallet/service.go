// Package wallet implements the deposit and withdrawal workflows: the
// request → review → terminal-state machines that decide when the ledger
// is allowed to move money.
package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plannivo/walletd/internal/actor"
	"github.com/plannivo/walletd/internal/ledger"
)

// CardGateway captures a card payment intent before a local record exists.
// The call happens outside any database transaction; a failure or timeout
// means no local state was touched.
type CardGateway interface {
	CreateIntent(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (string, error)
}

// RedirectGateway creates a hosted-checkout order and returns the gateway
// order id plus the URL the user is redirected to.
type RedirectGateway interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, idempotencyKey string) (orderID, redirectURL string, err error)
}

// Service drives both workflows. All multi-statement mutations run inside a
// single database transaction with the request row locked, so a retried
// HTTP call and an operator double-click cannot both settle the same request.
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	ledger   *ledger.Service
	actors   *actor.Resolver
	card     CardGateway
	redirect RedirectGateway
}

// NewService creates the workflow service. card and redirect gateways are
// optional; requests for an unwired method fail validation.
func NewService(logger *zap.Logger, db *gorm.DB, ledgerSvc *ledger.Service, actors *actor.Resolver, card CardGateway, redirect RedirectGateway) (*Service, error) {
	if db == nil || ledgerSvc == nil {
		return nil, fmt.Errorf("wallet service requires a database handle and a ledger")
	}
	return &Service{
		logger:   logger,
		db:       db,
		ledger:   ledgerSvc,
		actors:   actors,
		card:     card,
		redirect: redirect,
	}, nil
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (used
// by the test suite) serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
