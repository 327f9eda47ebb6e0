package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/sitepulse/collector/internal/api"
	"github.com/sitepulse/collector/internal/config"
	"github.com/sitepulse/collector/internal/dedup"
	"github.com/sitepulse/collector/internal/enrich"
	"github.com/sitepulse/collector/internal/pkg/logger"
	"github.com/sitepulse/collector/internal/repository/postgres"
	"github.com/sitepulse/collector/internal/service/pageview"
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

	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		logger.Error("ensure schema", "error", err.Error())
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Dedup.RedisURL)
	if err != nil {
		logger.Error("parse redis url", "error", err.Error())
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	var geo pageview.GeoResolver = enrich.Unavailable{}
	if cfg.GeoIP.DatabasePath != "" {
		resolver, err := enrich.NewGeoIPResolver(cfg.GeoIP.DatabasePath)
		if err != nil {
			logger.Warn("geoip database unavailable, countries will be null",
				"path", cfg.GeoIP.DatabasePath, "error", err.Error())
		} else {
			defer resolver.Close()
			geo = resolver
		}
	} else {
		logger.Warn("no geoip database configured, countries will be null")
	}

	repo := postgres.NewPageviewRepo(db, cfg.Database.TxTimeout())
	svc := pageview.NewService(repo, enrich.UAClassifier{}, geo, dedup.NewService(redisClient, cfg.Dedup.Secret))
	sweeper := worker.NewSweeper(db, cfg.Retention.Months)
	handler := api.NewHandler(svc, sweeper)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Routes(cfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("collector listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down collector")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
}
