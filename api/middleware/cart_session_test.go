package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ruddro420/storefront-cart/pkg/logger"
)

func serveCartSession(t *testing.T, req *http.Request, opts CartSessionOptions) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	handler := CartSession(opts, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CartSessionFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestCartSessionPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CartSessionHeader, "from-header")
	req.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: "from-cookie"})

	rec, seen := serveCartSession(t, req, CartSessionOptions{})
	if seen != "from-header" {
		t.Fatalf("expected header session, got %q", seen)
	}
	if rec.Header().Get(CartSessionHeader) != "from-header" {
		t.Fatalf("expected session echoed in header")
	}
}

func TestCartSessionFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: "from_cookie-1"})

	_, seen := serveCartSession(t, req, CartSessionOptions{})
	if seen != "from_cookie-1" {
		t.Fatalf("expected cookie session, got %q", seen)
	}
}

func TestCartSessionMintsWhenMissingOrInvalid(t *testing.T) {
	cases := map[string]string{
		"missing":  "",
		"invalid":  "not valid!",
		"too long": strings.Repeat("a", maxCartSessionLength+1),
	}
	for name, value := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		if value != "" {
			req.Header.Set(CartSessionHeader, value)
		}
		rec, seen := serveCartSession(t, req, CartSessionOptions{CookieTTL: time.Hour, SecureCookie: true})
		if seen == "" || seen == value {
			t.Fatalf("%s: expected minted session, got %q", name, seen)
		}
		if !validSessionID(seen) {
			t.Fatalf("%s: minted session %q is not valid", name, seen)
		}

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("%s: expected one cookie, got %d", name, len(cookies))
		}
		cookie := cookies[0]
		if cookie.Value != seen || !cookie.HttpOnly || !cookie.Secure || cookie.MaxAge != 3600 {
			t.Fatalf("%s: unexpected cookie %+v", name, cookie)
		}
	}
}

func TestCartSessionTagsLogs(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: &buf})
	handler := CartSession(CartSessionOptions{}, logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logg.Info(r.Context(), "inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(CartSessionHeader, "tagged")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"cart_session":"tagged"`) {
		t.Fatalf("expected cart_session field in logs, got %s", buf.String())
	}
}
