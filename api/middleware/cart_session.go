package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruddro420/storefront-cart/pkg/logger"
)

const (
	CartSessionHeader = "X-Cart-Session"
	CartSessionCookie = "cart_session"

	maxCartSessionLength = 128
)

// CartSessionOptions controls the cookie written for minted sessions.
type CartSessionOptions struct {
	CookieTTL    time.Duration
	SecureCookie bool
}

// CartSession resolves the shopper's cart session from the X-Cart-Session header, then
// the cart_session cookie, minting a new one when neither carries a usable value. The
// resolved id is echoed in the response header and cookie.
func CartSession(opts CartSessionOptions, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, ok := sessionFromRequest(r)
			if !ok {
				sessionID = uuid.NewString()
			}

			w.Header().Set(CartSessionHeader, sessionID)
			cookie := &http.Cookie{
				Name:     CartSessionCookie,
				Value:    sessionID,
				Path:     "/",
				HttpOnly: true,
				Secure:   opts.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			}
			if opts.CookieTTL > 0 {
				cookie.MaxAge = int(opts.CookieTTL.Seconds())
			}
			http.SetCookie(w, cookie)

			ctx := WithCartSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
				if !ok {
					logg.Debug(ctx, "cart_session.minted")
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get(CartSessionHeader)); validSessionID(id) {
		return id, true
	}
	if cookie, err := r.Cookie(CartSessionCookie); err == nil {
		if id := strings.TrimSpace(cookie.Value); validSessionID(id) {
			return id, true
		}
	}
	return "", false
}

// validSessionID accepts opaque ids made of letters, digits, '-' and '_'.
func validSessionID(id string) bool {
	if id == "" || len(id) > maxCartSessionLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
