// Package main provides a CLI tool for rebuilding the current-value
// projection from the movement ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"invcore/internal/core/clock"
	"invcore/internal/domain/projection"
	"invcore/internal/infrastructure/storage/postgres"
	"invcore/internal/infrastructure/storage/postgres/projection_repo"
	"invcore/pkg/logger"
)

func main() {
	full := flag.Bool("full", false, "truncate the projection before recomputing")
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
	service := projection.NewService(projection_repo.NewRepo(txManager), txManager, clock.System{})

	if *full {
		log.Info("rebuilding projection from scratch")
		err = service.Rebuild(ctx)
	} else {
		log.Info("refreshing projection for all items")
		err = service.RefreshAll(ctx)
	}
	if err != nil {
		log.Fatalw("projection rebuild failed", "error", err)
	}

	log.Info("projection rebuilt")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
