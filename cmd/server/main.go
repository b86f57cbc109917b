package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"racikpos/backend/internal/archive"
	"racikpos/backend/internal/cache"
	"racikpos/backend/internal/config"
	"racikpos/backend/internal/httpapi"
	"racikpos/backend/internal/logger"
	"racikpos/backend/internal/scheduler"
	"racikpos/backend/internal/service"
	"racikpos/backend/internal/store"
	"racikpos/backend/internal/store/memory"
	pgstore "racikpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	if err := validateSecurityConfig(cfg); err != nil {
		baseLogger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			baseLogger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			baseLogger.Fatal("postgres migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		baseLogger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		baseLogger.Info("repository: in-memory")
	}

	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			baseLogger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			summaryCache = redisCache
			closers = append(closers, redisCache.Close)
			baseLogger.Info("cache: redis")
		}
	} else {
		baseLogger.Info("cache: noop")
	}

	saleArchive := archive.SaleArchive(archive.NoopSaleArchive{})
	if cfg.MongoURI != "" {
		mongoArchive, err := archive.NewMongoSaleArchive(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			baseLogger.Warn("mongodb unavailable, sales will not be archived", zap.Error(err))
		} else {
			saleArchive = mongoArchive
			closers = append(closers, func() error {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer closeCancel()
				return mongoArchive.Close(closeCtx)
			})
			baseLogger.Info("sale archive: mongodb")
		}
	}

	svc := service.New(repo, service.Options{
		Fees:                 cfg.PaymentFees,
		ReservePercent:       cfg.ReservePercent,
		DefaultMarginPercent: cfg.DefaultMarginPercent,
		LowStockRatio:        cfg.LowStockRatio,
		Cache:                summaryCache,
		CacheTTL:             time.Duration(cfg.SummaryCacheTTLSeconds) * time.Second,
		Archive:              saleArchive,
		Logger:               logger.Named(baseLogger, "service"),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger.Named(baseLogger, "auth"))
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named(baseLogger, "httpapi"))

	sched := scheduler.New(svc, cfg.StockAlertCron, cfg.FinanceWarmupCron, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	baseLogger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			baseLogger.Error("close error", zap.Error(err))
		}
	}

	baseLogger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when running against postgres")
	}
	return nil
}
