// Command sweep runs one retention sweep against the pageview store and
// exits. Intended for cron; the HTTP admin endpoint drives the same code.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sitepulse/collector/internal/config"
	"github.com/sitepulse/collector/internal/pkg/logger"
	"github.com/sitepulse/collector/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("ping database", "error", err.Error())
		os.Exit(1)
	}
	cancel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := worker.NewSweeper(db, cfg.Retention.Months).Sweep(ctx)

	logger.Info("retention sweep finished",
		"total_deleted", result.TotalDeleted,
		"batches", result.BatchesProcessed,
		"duration_ms", result.DurationMs,
		"errors", len(result.Errors),
		"aborted", result.Aborted)

	if result.Aborted {
		os.Exit(1)
	}
}
