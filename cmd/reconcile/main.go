// Package main provides a CLI tool for generating monthly summaries.
//
// It walks every item seen in the movement ledger and chains summaries
// month by month up to the target period. Intended for cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"invcore/internal/core/clock"
	"invcore/internal/domain/summary"
	"invcore/internal/infrastructure/storage/postgres"
	"invcore/internal/infrastructure/storage/postgres/summary_repo"
	"invcore/pkg/logger"
)

func main() {
	periodFlag := flag.String("period", "", "target period YYYY-MM (default: previous month)")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	target, err := resolvePeriod(*periodFlag)
	if err != nil {
		log.Fatalw("invalid period", "period", *periodFlag, "error", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	service := summary.NewService(summary_repo.NewRepo(txManager), txManager, clock.System{})

	log.Infow("generating summaries", "period", target.String())

	result, err := service.GenerateAll(ctx, target)
	if err != nil {
		log.Fatalw("reconciliation failed", "error", err)
	}

	log.Infow("reconciliation finished",
		"period", target.String(),
		"generated", result.Generated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	if result.Failed > 0 {
		for _, unit := range result.Results {
			if unit.Status == summary.UnitFailed {
				log.Warnw("unit failed",
					"sku", unit.Item.SKU,
					"period", unit.Period,
					"error", unit.Error,
				)
			}
		}
		os.Exit(1)
	}
}

// resolvePeriod parses YYYY-MM, defaulting to the month before now.
func resolvePeriod(value string) (summary.Period, error) {
	if value == "" {
		return summary.PeriodOf(time.Now().UTC()).Prev(), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return summary.Period{}, fmt.Errorf("expected YYYY-MM: %w", err)
	}
	period := summary.PeriodOf(t)
	if err := period.Validate(); err != nil {
		return summary.Period{}, err
	}
	return period, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
