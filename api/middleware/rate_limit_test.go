package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/ruddro420/storefront-cart/pkg/errors"
)

func TestMutationRateLimit_AllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewMutationRateLimitPolicy("cart", time.Minute, 2)
	handler := MutationRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{}`))
		req = req.WithContext(WithCartSession(req.Context(), "session-a"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestMutationRateLimit_SessionLimitTriggers(t *testing.T) {
	store := newFakeRateStore()
	policy := NewMutationRateLimitPolicy("cart", time.Minute, 2)
	handler := MutationRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/p1::base", strings.NewReader(`{"qty":2}`))
		req = req.WithContext(WithCartSession(req.Context(), "session-b"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		switch {
		case i < 2 && rec.Code != http.StatusOK:
			t.Fatalf("expected success before limit, got %d", rec.Code)
		case i >= 2:
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}

	other := httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/p1::base", strings.NewReader(`{"qty":2}`))
	other = other.WithContext(WithCartSession(other.Context(), "session-c"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other session to pass, got %d", rec.Code)
	}
}

func TestMutationRateLimit_SkipsReads(t *testing.T) {
	store := newFakeRateStore()
	policy := NewMutationRateLimitPolicy("cart", time.Minute, 1)
	handler := MutationRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected reads to bypass limit, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("expected no counters for reads, got %v", store.counts)
	}
}

func TestMutationRateLimit_FallsBackToIP(t *testing.T) {
	store := newFakeRateStore()
	policy := NewMutationRateLimitPolicy("", time.Minute, 1)
	handler := MutationRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil)
	req.RemoteAddr = "5.6.7.8:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if _, ok := store.counts["rl:session:cart:ip:5.6.7.8"]; !ok {
		t.Fatalf("expected ip scoped counter, got %v", store.counts)
	}
}

func TestMutationRateLimit_StoreFailure(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	policy := NewMutationRateLimitPolicy("cart", time.Minute, 5)
	called := false
	handler := MutationRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if called {
		t.Fatalf("handler should not run when the limiter fails")
	}
}

func TestMutationRateLimit_DisabledPolicy(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := MutationRateLimit(NewMutationRateLimitPolicy("cart", 0, 10), newFakeRateStore(), nil)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}
