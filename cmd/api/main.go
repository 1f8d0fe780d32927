package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/ruddro420/storefront-cart/api/routes"
	"github.com/ruddro420/storefront-cart/internal/cart/storage"
	"github.com/ruddro420/storefront-cart/internal/session"
	"github.com/ruddro420/storefront-cart/pkg/config"
	"github.com/ruddro420/storefront-cart/pkg/db"
	"github.com/ruddro420/storefront-cart/pkg/logger"
	"github.com/ruddro420/storefront-cart/pkg/metrics"
	"github.com/ruddro420/storefront-cart/pkg/migrate"
	"github.com/ruddro420/storefront-cart/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	var (
		dbClient    *db.Client
		redisClient *redis.Client
		dbPinger    db.Pinger
		deps        = storage.Deps{TTL: cfg.Cart.TTL}
	)

	if cfg.Cart.Backend == config.CartBackendDB {
		dbClient, err = db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap database", err)
			os.Exit(1)
		}
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
		dbPinger = dbClient
		deps.DB = dbClient.DB()
	}

	// Redis also backs idempotency and rate limiting, so it is used whenever configured.
	if cfg.Cart.Backend == config.CartBackendRedis || cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		deps.Redis = redisClient
	}

	persister, err := storage.New(cfg.Cart.Backend, deps)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart storage", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessions, err := session.NewRegistry(session.Options{
		Persister:      persister,
		Logger:         logg,
		Metrics:        metrics.NewCartMetrics(reg),
		MaxSessions:    cfg.Cart.MaxSessions,
		PersistTimeout: cfg.Cart.PersistTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session registry", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"backend": persister.Name(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, sessions, redisClient, dbPinger, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	if err := closeClients(dbClient, redisClient); err != nil {
		logg.Error(ctx, "error closing clients", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

func closeClients(dbClient *db.Client, redisClient *redis.Client) error {
	var err error
	if dbClient != nil {
		err = multierr.Append(err, dbClient.Close())
	}
	if redisClient != nil {
		err = multierr.Append(err, redisClient.Close())
	}
	return err
}
