// Command snapshot-rebuild replays the stock ledger into the balance
// snapshot table and reports how many keys had drifted. Run it when a
// snapshot is suspected stale (after a crash mid-migration, or manual
// database surgery).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"rxledger/internal/core/id"
	"rxledger/internal/domain/ledger"
	"rxledger/internal/infrastructure/storage/postgres"
	"rxledger/internal/infrastructure/storage/postgres/ledger_repo"
	"rxledger/pkg/logger"
)

func main() {
	companyIDStr := flag.String("company-id", "", "Required: company id (uuid)")
	branchIDStr := flag.String("branch-id", "", "Optional: narrow to one branch (uuid)")
	itemIDStr := flag.String("item-id", "", "Optional: narrow to one item (uuid)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall operation timeout")
	flag.Parse()

	if strings.TrimSpace(*companyIDStr) == "" {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}

	companyID, err := id.Parse(*companyIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid company id: %v\n", err)
		os.Exit(1)
	}

	var branchID, itemID *id.ID
	if strings.TrimSpace(*branchIDStr) != "" {
		parsed, err := id.Parse(*branchIDStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid branch id: %v\n", err)
			os.Exit(1)
		}
		branchID = &parsed
	}
	if strings.TrimSpace(*itemIDStr) != "" {
		parsed, err := id.Parse(*itemIDStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid item id: %v\n", err)
			os.Exit(1)
		}
		itemID = &parsed
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	if err != nil {
		log.Fatalw("connect database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	repo := ledger_repo.NewLedgerRepo(txManager)
	svc := ledger.NewService(repo, nil)

	var drifted int
	err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		drifted, err = svc.RebuildBalances(ctx, companyID, branchID, itemID)
		return err
	})
	if err != nil {
		log.Fatalw("rebuild failed", "error", err)
	}

	log.Infow("snapshot rebuild complete", "company_id", companyID, "drifted_keys", drifted)
}
