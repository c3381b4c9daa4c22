// Package main is the entry point for the stockval background worker.
// It resumes report generations that were interrupted mid-step.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockval/internal/domain/valuation"
	"stockval/internal/infrastructure/storage/postgres"
	"stockval/internal/infrastructure/storage/postgres/valuation_repo"
	"stockval/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockval worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManagerWithOptions(pool, postgres.BatchTxOptions())

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	valuationService := valuation.NewService(valuation.ServiceConfig{
		Reports:          valuation_repo.NewReportRepo(txManager),
		Scratch:          valuation_repo.NewScratchRepo(txManager),
		Facts:            valuation_repo.NewFactRepo(txManager),
		Locker:           postgres.NewAdvisoryLocker(txManager),
		Numbers:          valuation_repo.NewReportNumberSource(txManager),
		Audit:            auditService,
		TxManager:        txManager,
		CurrencyDecimals: int32(getEnvInt("CURRENCY_DECIMALS", 2)),
	})

	worker := NewResumeWorker(valuationService, log,
		getEnvDuration("RESUME_POLL_INTERVAL", time.Minute),
		getEnvDuration("RESUME_IDLE_THRESHOLD", 10*time.Minute),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// ResumeWorker periodically looks for stalled report generations and drives
// them forward. Each poll resumes at most one report; the lifecycle guard
// allows only one in-flight report anyway.
type ResumeWorker struct {
	service       *valuation.Service
	log           *logger.Logger
	pollInterval  time.Duration
	idleThreshold time.Duration
}

func NewResumeWorker(service *valuation.Service, log *logger.Logger, pollInterval, idleThreshold time.Duration) *ResumeWorker {
	return &ResumeWorker{
		service:       service,
		log:           log.WithComponent("resume_worker"),
		pollInterval:  pollInterval,
		idleThreshold: idleThreshold,
	}
}

// Run polls until ctx is cancelled.
func (w *ResumeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idleSince := time.Now().UTC().Add(-w.idleThreshold)
			resumed, err := w.service.ResumeStalled(ctx, idleSince)
			if err != nil {
				w.log.Warnw("resume attempt failed", "error", err)
				continue
			}
			if resumed {
				w.log.Infow("resumed stalled report generation")
			}
		}
	}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
