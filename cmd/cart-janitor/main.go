package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ruddro420/storefront-cart/internal/cart/storage"
	"github.com/ruddro420/storefront-cart/internal/cron"
	"github.com/ruddro420/storefront-cart/pkg/config"
	"github.com/ruddro420/storefront-cart/pkg/db"
	"github.com/ruddro420/storefront-cart/pkg/logger"
	"github.com/ruddro420/storefront-cart/pkg/metrics"
	"github.com/ruddro420/storefront-cart/pkg/migrate"
	"github.com/ruddro420/storefront-cart/pkg/redis"
)

const lockKeyFormat = "sf:cart-janitor:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cart-janitor"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cart-janitor",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Cart.Backend != config.CartBackendDB {
		logg.Info(context.Background(), "cart backend expires its own records; nothing to sweep")
		return
	}

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	snapshots, err := storage.NewDBPersister(dbClient.DB(), cfg.Cart.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot store", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewCartExpiryJob(snapshots, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}

	var lock cron.Lock
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		redisLock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cart.JanitorInterval)
		if err != nil {
			logg.Error(context.Background(), "failed to create janitor lock", err)
			os.Exit(1)
		}
		lock = redisLock
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cart.JanitorInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create janitor service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cart.JanitorInterval.String(),
	})
	logg.Info(ctx, "starting cart janitor")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cart janitor stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cart janitor shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
