package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/ruddro420/storefront-cart/api/responses"
	"github.com/ruddro420/storefront-cart/pkg/config"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/logger"
)

const (
	envHeader        = "X-Storefront-Env"
	readinessTimeout = 2 * time.Second
)

// Pinger is any backend the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a backend for readiness reporting.
type Dependency struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every configured cart backend. Nil pingers are skipped so the
// memory backend is always ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		var combined error
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				checks[dep.Name] = "unavailable"
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", dep.Name, err))
				continue
			}
			checks[dep.Name] = "ok"
		}

		if combined != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "backend": cfg.Cart.Backend, "checks": checks})
	}
}
