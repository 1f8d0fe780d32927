package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruddro420/storefront-cart/api/controllers"
	cartcontrollers "github.com/ruddro420/storefront-cart/api/controllers/cart"
	"github.com/ruddro420/storefront-cart/api/middleware"
	"github.com/ruddro420/storefront-cart/pkg/config"
	"github.com/ruddro420/storefront-cart/pkg/db"
	"github.com/ruddro420/storefront-cart/pkg/logger"
	"github.com/ruddro420/storefront-cart/pkg/redis"
)

// NewRouter wires the storefront cart API. redisClient and dbP may be nil when the
// configured cart backend does not need them; redis-backed middleware is skipped then.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	sessions cartcontrollers.Sessions,
	redisClient *redis.Client,
	dbP db.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	readiness := []controllers.Dependency{}
	if redisClient != nil {
		readiness = append(readiness, controllers.Dependency{Name: "redis", Pinger: redisClient})
	}
	if dbP != nil {
		readiness = append(readiness, controllers.Dependency{Name: "db", Pinger: dbP})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	shipping := cfg.Cart.Shipping()
	mutationPolicy := middleware.NewMutationRateLimitPolicy(
		"cart",
		cfg.RateLimit.MutationWindow,
		cfg.RateLimit.MutationLimit,
	)

	// Route patterns are only resolved after sub-routing, so idempotency is attached per
	// route rather than with Use.
	idempotent := func(next http.Handler) http.Handler { return next }
	if redisClient != nil && cfg.FeatureFlags.Idempotency {
		idempotent = middleware.Idempotency(redisClient, logg)
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.CartSession(middleware.CartSessionOptions{
			CookieTTL:    cfg.Cart.TTL,
			SecureCookie: cfg.App.IsProd(),
		}, logg))
		if redisClient != nil {
			r.Use(middleware.MutationRateLimit(mutationPolicy, redisClient, logg))
		}

		r.Get("/", cartcontrollers.CartFetch(sessions, shipping, logg))
		r.Delete("/", cartcontrollers.CartClear(sessions, shipping, logg))
		r.Get("/ping", controllers.CartPing())
		r.Get("/status", cartcontrollers.CartItemStatus(sessions, logg))
		r.Get("/totals", cartcontrollers.CartTotals(sessions, shipping, logg))
		r.Get("/subscribe", cartcontrollers.CartSubscribe(sessions, shipping, logg))

		r.With(idempotent).Post("/items", cartcontrollers.CartAddItem(sessions, shipping, logg))
		r.With(idempotent).Post("/catalog-items", cartcontrollers.CartAddCatalogItem(sessions, shipping, logg))
		r.With(idempotent).Post("/checkout-snapshot", cartcontrollers.CartCheckoutSnapshot(sessions, shipping, logg))
		r.Patch("/items/{lineID}", cartcontrollers.CartSetQty(sessions, shipping, logg))
		r.Delete("/items/{lineID}", cartcontrollers.CartRemoveItem(sessions, shipping, logg))

		r.Put("/coupon", cartcontrollers.CartApplyCoupon(sessions, shipping, logg))
		r.Delete("/coupon", cartcontrollers.CartRemoveCoupon(sessions, shipping, logg))
	})

	return r
}
