// Package server exposes the wallet core over HTTP. Handlers are thin:
// they bind, call a service and translate typed errors into status codes.
package server

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plannivo/walletd/internal/actor"
	"github.com/plannivo/walletd/internal/gateway"
	"github.com/plannivo/walletd/internal/ledger"
	"github.com/plannivo/walletd/internal/wallet"
	werr "github.com/plannivo/walletd/pkg/errors"
)

// Server is the HTTP surface over the ledger and wallet workflows.
type Server struct {
	logger     *zap.Logger
	ledgerSvc  *ledger.Service
	walletSvc  *wallet.Service
	reconciler *gateway.Reconciler
	stripe     *gateway.StripeClient
	binance    *gateway.BinancePayClient
	iyzico     *gateway.IyzicoVerifier
	validate   *validator.Validate
}

// NewServer creates the HTTP server. Gateway clients may be nil when the
// corresponding provider is not configured; their webhook routes then
// reject all deliveries.
func NewServer(
	logger *zap.Logger,
	ledgerSvc *ledger.Service,
	walletSvc *wallet.Service,
	reconciler *gateway.Reconciler,
	stripe *gateway.StripeClient,
	binance *gateway.BinancePayClient,
	iyzico *gateway.IyzicoVerifier,
) *Server {
	return &Server{
		logger:     logger,
		ledgerSvc:  ledgerSvc,
		walletSvc:  walletSvc,
		reconciler: reconciler,
		stripe:     stripe,
		binance:    binance,
		iyzico:     iyzico,
		validate:   validator.New(),
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(s.actorMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			deposits := v1.Group("/wallet/deposits")
			{
				deposits.POST("", s.handleCreateDeposit)
				deposits.GET("", s.handleListDeposits)
				deposits.POST("/:id/approve", s.handleApproveDeposit)
				deposits.POST("/:id/reject", s.handleRejectDeposit)
			}
			v1.POST("/wallet/admin/deposit/:user_id", s.handleAdminDeposit)

			withdrawals := v1.Group("/wallet/withdrawals")
			{
				withdrawals.POST("", s.handleRequestWithdrawal)
				withdrawals.GET("", s.handleListWithdrawals)
				withdrawals.POST("/:id/approve", s.handleApproveWithdrawal)
				withdrawals.POST("/:id/reject", s.handleRejectWithdrawal)
				withdrawals.POST("/:id/finalize", s.handleFinalizeWithdrawal)
			}

			accounts := v1.Group("/accounts/:user_id")
			{
				accounts.GET("/balances", s.handleGetBalances)
				accounts.GET("/transactions", s.handleGetTransactions)
				accounts.POST("/adjustments", s.handleManualAdjustment)
				accounts.POST("/rebuild", s.handleRebuildAccount)
			}
		}
	}

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/stripe", s.handleStripeWebhook)
		webhooks.POST("/binancepay", s.handleBinancePayWebhook)
		webhooks.POST("/iyzico", s.handleIyzicoWebhook)
	}

	return router
}

// actorMiddleware carries the caller identity from the X-Actor-ID header
// into the request context. Validation happens at resolution time, not here.
func (s *Server) actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if candidate := c.GetHeader("X-Actor-ID"); candidate != "" {
			c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), candidate))
		}
		c.Next()
	}
}

// writeError maps typed service errors onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case werr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case werr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case werr.IsGateway(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
