// Package main is the entry point for the invcore API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invcore/internal/core/clock"
	"invcore/internal/domain/conversion"
	"invcore/internal/domain/fifo"
	"invcore/internal/domain/ledger"
	"invcore/internal/domain/projection"
	"invcore/internal/domain/summary"
	"invcore/internal/infrastructure/auth"
	v1 "invcore/internal/infrastructure/http/v1"
	"invcore/internal/infrastructure/metrics"
	"invcore/internal/infrastructure/refresh"
	"invcore/internal/infrastructure/storage/postgres"
	"invcore/internal/infrastructure/storage/postgres/conversion_repo"
	"invcore/internal/infrastructure/storage/postgres/ledger_repo"
	"invcore/internal/infrastructure/storage/postgres/migrations"
	"invcore/internal/infrastructure/storage/postgres/projection_repo"
	"invcore/internal/infrastructure/storage/postgres/summary_repo"
	"invcore/pkg/logger"
	"invcore/pkg/refcode"
)

var version = "dev"

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting invcore server")

	dsn := mustEnv("DATABASE_URL")

	// --- Migrations ---
	if getEnv("RUN_MIGRATIONS", "true") == "true" {
		if err := migrations.Up(ctx, dsn); err != nil {
			log.Fatalw("failed to run migrations", "error", err)
		}
		log.Info("migrations applied")
	}

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(dsn)
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Metrics ---
	m := metrics.New()

	// --- Repositories ---
	ledgerRepo := ledger_repo.NewRepo(txManager)
	recordRepo := conversion_repo.NewRecordRepo(txManager)
	templateRepo := conversion_repo.NewTemplateRepo(txManager)
	summaryRepo := summary_repo.NewRepo(txManager)
	projectionRepo := projection_repo.NewRepo(txManager)

	// --- Services ---
	clk := clock.System{}

	projectionService := projection.NewService(projectionRepo, txManager, clk)

	queueSize := getEnvInt("REFRESH_QUEUE_SIZE", 1024)
	refreshQueue := refresh.NewQueue(projectionService, m, queueSize)
	defer refreshQueue.Close()

	refCodes := refcode.New(pool.Unwrap())
	engine := fifo.NewEngine(ledgerRepo, clk)

	ledgerService := ledger.NewService(ledgerRepo, txManager, refreshQueue, clk)
	conversionService := conversion.NewService(
		recordRepo,
		templateRepo,
		ledgerRepo,
		engine,
		txManager,
		refCodes,
		refreshQueue,
		clk,
	)
	summaryService := summary.NewService(summaryRepo, txManager, clk)

	// --- JWT ---
	jwtSecret := mustEnv("JWT_SECRET")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:              pool.Unwrap(),
		Logger:            log,
		Metrics:           m,
		JWTValidator:      jwtService,
		Version:           version,
		LedgerService:     ledgerService,
		ConversionService: conversionService,
		SummaryService:    summaryService,
		ProjectionService: projectionService,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
