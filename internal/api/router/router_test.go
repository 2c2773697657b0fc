package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"immersion/backend/config"
	"immersion/backend/internal/api/handler"
	"immersion/backend/internal/service"
	"immersion/backend/pkg/jwt"
	"immersion/backend/pkg/metrics"
)

func testEngine(ready func(context.Context) error) http.Handler {
	cfg := &config.Config{}
	reg := prometheus.NewRegistry()
	metrics.New(reg).IncRegistration("individual")

	return Setup(Options{
		Config:   cfg,
		Handler:  handler.NewHandler(&service.Service{}),
		JWT:      jwt.NewManager(&config.AuthConfig{JWTSecret: "router-test", AccessTokenTTL: time.Minute}),
		Gatherer: reg,
		Ready:    ready,
		Logger:   zap.NewNop(),
	})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestSetup_Health(t *testing.T) {
	engine := testEngine(nil)
	if w := get(engine, "/health"); w.Code != http.StatusOK {
		t.Errorf("期望 200，实际 %d", w.Code)
	}
	if w := get(engine, "/health/ready"); w.Code != http.StatusOK {
		t.Errorf("未配置就绪检查时期望 200，实际 %d", w.Code)
	}

	engine = testEngine(func(context.Context) error { return errors.New("db down") })
	if w := get(engine, "/health/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("数据库不可用时期望 503，实际 %d", w.Code)
	}
}

func TestSetup_Metrics(t *testing.T) {
	w := get(testEngine(nil), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("应设置 X-Request-ID 响应头")
	}
}

func TestSetup_ProtectedRoutesRequireToken(t *testing.T) {
	engine := testEngine(nil)
	for _, path := range []string{"/api/v1/jobs", "/api/v1/auth/me", "/api/v1/users/me/remaining-registrations"} {
		if w := get(engine, path); w.Code != http.StatusUnauthorized {
			t.Errorf("%s 期望 401，实际 %d", path, w.Code)
		}
	}
}
