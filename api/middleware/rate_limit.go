package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ruddro420/storefront-cart/api/responses"
	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
	"github.com/ruddro420/storefront-cart/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// MutationRateLimitPolicy defines how many cart mutations one session may issue per window.
type MutationRateLimitPolicy struct {
	name   string
	window time.Duration
	limit  int
}

// NewMutationRateLimitPolicy builds a policy with the supplied window and limit.
func NewMutationRateLimitPolicy(name string, window time.Duration, limit int) MutationRateLimitPolicy {
	return MutationRateLimitPolicy{
		name:   strings.ToLower(strings.TrimSpace(name)),
		window: window,
		limit:  limit,
	}
}

func (p MutationRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

func (p MutationRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "cart"
	}
	return p.name
}

func (p MutationRateLimitPolicy) sessionKey(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	return fmt.Sprintf("rl:session:%s:%s", p.normalizedName(), sessionID)
}

// MutationRateLimit throttles non-read requests per cart session. Sessionless requests
// fall back to the client IP.
func MutationRateLimit(policy MutationRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := clientIP(r)
			subject := CartSessionFromContext(ctx)
			if subject == "" {
				subject = "ip:" + ip
			}

			key := policy.sessionKey(subject)
			allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.limit))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				respondRateLimited(ctx, logg, w, policy, ip, count)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy MutationRateLimitPolicy, ip string, count int64) {
	retryAfter := int(policy.window.Seconds())
	if logg != nil {
		fields := map[string]any{
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          policy.limit,
			"window_seconds": retryAfter,
		}
		if ip != "" {
			fields["ip"] = ip
		}
		logg.Warn(logg.WithFields(ctx, fields), "cart.rate_limit.blocked")
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
