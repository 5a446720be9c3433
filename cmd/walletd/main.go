package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plannivo/walletd/internal/actor"
	"github.com/plannivo/walletd/internal/config"
	"github.com/plannivo/walletd/internal/database"
	"github.com/plannivo/walletd/internal/gateway"
	"github.com/plannivo/walletd/internal/ledger"
	"github.com/plannivo/walletd/internal/server"
	"github.com/plannivo/walletd/internal/wallet"
	"github.com/plannivo/walletd/internal/wallet/cache"
	"github.com/plannivo/walletd/pkg/logger"
	"github.com/plannivo/walletd/pkg/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Balance cache is optional; an empty redis address disables it.
	var balanceCache ledger.BalanceCache
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unreachable, running without balance cache", zap.Error(err))
		} else {
			balanceCache = cache.NewRedisBalanceCache(client, zapLogger, "walletd", cfg.Redis.TTL)
		}
	}

	actors := actor.NewResolver(zapLogger, cfg.Actor.SystemActorID)

	ledgerSvc, err := ledger.NewService(zapLogger, db, balanceCache)
	if err != nil {
		zapLogger.Fatal("Failed to create ledger service", zap.Error(err))
	}

	var stripeClient *gateway.StripeClient
	var card wallet.CardGateway
	if cfg.Gateways.Stripe.SecretKey != "" {
		stripeClient = gateway.NewStripeClient(cfg.Gateways.Stripe.SecretKey, cfg.Gateways.Stripe.WebhookSecret, cfg.Gateways.CallTimeout, zapLogger)
		card = stripeClient
	}

	var binanceClient *gateway.BinancePayClient
	var redirect wallet.RedirectGateway
	if cfg.Gateways.BinancePay.APIKey != "" {
		binanceClient = gateway.NewBinancePayClient(cfg.Gateways.BinancePay.BaseURL, cfg.Gateways.BinancePay.APIKey, cfg.Gateways.BinancePay.APISecret, cfg.Gateways.CallTimeout, zapLogger)
		redirect = binanceClient
	}

	var iyzicoVerifier *gateway.IyzicoVerifier
	if cfg.Gateways.Iyzico.APISecret != "" {
		iyzicoVerifier = gateway.NewIyzicoVerifier(cfg.Gateways.Iyzico.APISecret)
	}

	walletSvc, err := wallet.NewService(zapLogger, db, ledgerSvc, actors, card, redirect)
	if err != nil {
		zapLogger.Fatal("Failed to create wallet service", zap.Error(err))
	}

	reconciler := gateway.NewReconciler(zapLogger, db, ledgerSvc, walletSvc, actors)

	// DB pool metrics every 30s.
	poolTicker := time.NewTicker(30 * time.Second)
	defer poolTicker.Stop()
	go func() {
		for range poolTicker.C {
			if sqlDB, err := db.DB(); err == nil {
				metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(sqlDB.Stats().OpenConnections))
			}
		}
	}()

	srv := server.NewServer(zapLogger, ledgerSvc, walletSvc, reconciler, stripeClient, binanceClient, iyzicoVerifier)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("Graceful shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
