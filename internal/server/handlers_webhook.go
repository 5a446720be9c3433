package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plannivo/walletd/internal/gateway"
	werr "github.com/plannivo/walletd/pkg/errors"
)

// Webhook handlers verify the provider signature, normalize the payload and
// hand it to the reconciler. A handled duplicate returns 200 so the provider
// stops retrying; a persistence failure returns 5xx so it retries.

func (s *Server) handleStripeWebhook(c *gin.Context) {
	if s.stripe == nil {
		s.writeError(c, werr.NewValidation("gateway", "stripe is not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.writeError(c, werr.NewValidation("body", "unreadable payload"))
		return
	}

	event, err := s.stripe.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.logger.Warn("rejected stripe webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	pe, re, isPayment, isRefund := gateway.MapStripeEvent(event)
	switch {
	case isPayment:
		if err := s.reconciler.HandlePayment(c.Request.Context(), pe); err != nil {
			s.writeError(c, err)
			return
		}
	case isRefund:
		if err := s.reconciler.HandleRefund(c.Request.Context(), re); err != nil {
			s.writeError(c, err)
			return
		}
	default:
		// Unhandled event type; acknowledge so Stripe does not retry.
		s.logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) handleBinancePayWebhook(c *gin.Context) {
	if s.binance == nil {
		s.writeError(c, werr.NewValidation("gateway", "binance pay is not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.writeError(c, werr.NewValidation("body", "unreadable payload"))
		return
	}

	err = s.binance.VerifyCallback(
		c.GetHeader("BinancePay-Timestamp"),
		c.GetHeader("BinancePay-Nonce"),
		c.GetHeader("BinancePay-Signature"),
		payload,
	)
	if err != nil {
		s.logger.Warn("rejected binance pay callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"returnCode": "FAIL", "returnMessage": "invalid signature"})
		return
	}

	var cb gateway.BinanceCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	ev, ok, err := gateway.MapBinanceCallback(cb)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if ok {
		if err := s.reconciler.HandlePayment(c.Request.Context(), ev); err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"returnCode": "SUCCESS", "returnMessage": nil})
}

func (s *Server) handleIyzicoWebhook(c *gin.Context) {
	if s.iyzico == nil {
		s.writeError(c, werr.NewValidation("gateway", "iyzico is not configured"))
		return
	}
	var cb gateway.IyzicoCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		s.writeError(c, werr.NewValidation("body", err.Error()))
		return
	}
	if err := s.iyzico.Verify(cb); err != nil {
		s.logger.Warn("rejected iyzico callback", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	pe, re, isPayment, isRefund, err := gateway.MapIyzicoCallback(cb)
	if err != nil {
		s.writeError(c, err)
		return
	}
	switch {
	case isPayment:
		if err := s.reconciler.HandlePayment(c.Request.Context(), pe); err != nil {
			s.writeError(c, err)
			return
		}
	case isRefund:
		if err := s.reconciler.HandleRefund(c.Request.Context(), re); err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
