// Command rebuild-accounts replays completed ledger transactions and
// rewrites the per-user balance projections. Run it after data repair or
// when a projection is suspected to have drifted from the ledger.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plannivo/walletd/internal/database"
	"github.com/plannivo/walletd/internal/ledger"
	"github.com/plannivo/walletd/pkg/logger"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (required)")
	user := flag.String("user", "", "rebuild a single user id; all users when empty")
	dryRun := flag.Bool("dry-run", false, "report deltas without writing")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn is required")
	}

	zapLogger, err := logger.New("info")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(*dsn, 10, 5, 3600)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	svc, err := ledger.NewService(zapLogger, db, nil)
	if err != nil {
		zapLogger.Fatal("Failed to create ledger service", zap.Error(err))
	}

	ctx := context.Background()

	var userIDs []uuid.UUID
	if *user != "" {
		id, err := uuid.Parse(*user)
		if err != nil {
			zapLogger.Fatal("Invalid -user id", zap.String("user", *user), zap.Error(err))
		}
		userIDs = []uuid.UUID{id}
	} else {
		userIDs, err = svc.UserIDsWithTransactions(ctx)
		if err != nil {
			zapLogger.Fatal("Failed to list users", zap.Error(err))
		}
	}

	zapLogger.Info("Rebuilding account summaries",
		zap.Int("users", len(userIDs)),
		zap.Bool("dry_run", *dryRun))

	var summaries int
	for _, id := range userIDs {
		results, err := svc.Rebuild(ctx, id, *dryRun)
		if err != nil {
			zapLogger.Error("Rebuild failed", zap.String("user_id", id.String()), zap.Error(err))
			continue
		}
		for _, r := range results {
			summaries++
			zapLogger.Info("Summary recomputed",
				zap.String("user_id", id.String()),
				zap.String("currency", r.Currency),
				zap.String("balance", r.Balance.StringFixed(2)),
				zap.String("total_spent", r.TotalSpent.StringFixed(2)),
				zap.Int("transactions", r.Transactions))
		}
	}

	zapLogger.Info("Rebuild finished",
		zap.Int("users", len(userIDs)),
		zap.Int("summaries", summaries))
}
