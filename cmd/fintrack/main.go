package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	flog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(flog.ComponentApp)
	logger.Info("Starting fintrack", "port", cfg.Port, "backend", cfg.DataBackend)

	res := cli.OpenBackend(context.Background(), logger, cfg)

	reportCache, cleanupCache := newReportCache(logger, cfg)

	reports := services.NewReportService(res.Backend, reportCache)
	opts := []services.TransactionOption{
		services.WithInvalidator(reports),
		services.WithLogger(logger),
	}
	// A nil *amqp.Client must not become a non-nil interface value.
	publisher := cli.ConnectAMQP(logger, cfg)
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}
	txs := services.NewTransactionService(res.Backend, opts...)

	serverOpts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithVerifier(auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.DefaultOwner)),
	}
	if p, ok := res.Backend.(store.Pinger); ok {
		serverOpts = append(serverOpts, apphttp.WithPinger(p))
	}
	if !cfg.JWTEnabled() {
		logger.Warn("JWT_SECRET not set, every request acts as the default owner", "owner", cfg.DefaultOwner)
	}
	srv := apphttp.NewServer(":"+cfg.Port, txs, reports, serverOpts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", flog.FieldError, err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", flog.FieldError, err)
			}
		}
		cleanupCache()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", flog.FieldError, err)
			}
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", flog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newReportCache prefers Redis when REDIS_ADDR is set and reachable, and
// falls back to an in-process LRU otherwise.
func newReportCache(logger *flog.Logger, cfg *config.Config) (cache.Cache[[]core.Transaction], func()) {
	logger = logger.WithComponent(flog.ComponentCache)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process report cache", flog.FieldError, err)
	}
	if rdb != nil {
		logger.Info("Using Redis report cache", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		return cache.NewRedisCache[[]core.Transaction](rdb, "fintrack:reports", cfg.CacheTTL), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close Redis client", flog.FieldError, err)
			}
		}
	}

	lru := cache.NewLRUCache[[]core.Transaction](cfg.CacheSize, cfg.CacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	manager.StartCleanup(time.Minute)
	return lru, manager.Stop
}
