package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruddro420/storefront-cart/api/middleware"
	"github.com/ruddro420/storefront-cart/pkg/config"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReadyAllHealthy(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}, Cart: config.CartConfig{Backend: "redis"}}
	handler := HealthReady(cfg, nil,
		Dependency{Name: "redis", Pinger: pingerFunc(func(context.Context) error { return nil })},
		Dependency{Name: "db"},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get(envHeader) != "dev" {
		t.Fatalf("expected env header")
	}

	var envelope struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != "ready" || envelope.Data.Checks["redis"] != "ok" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
	if _, ok := envelope.Data.Checks["db"]; ok {
		t.Fatalf("nil pinger should be skipped")
	}
}

func TestHealthReadyDependencyDown(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}}
	handler := HealthReady(cfg, nil,
		Dependency{Name: "redis", Pinger: pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestCartPingEchoesSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/ping", nil)
	req = req.WithContext(middleware.WithCartSession(req.Context(), "abc"))
	rec := httptest.NewRecorder()
	CartPing().ServeHTTP(rec, req)

	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data["cart_session"] != "abc" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}
