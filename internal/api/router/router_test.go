package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/telefile/telefile/internal/api/handlers"
	"github.com/telefile/telefile/internal/config"
)

func TestLivenessRoute(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"

	r := NewRouter(cfg, handlers.NewHealthHandler(nil), handlers.NewStatsHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("Expected correlation id header")
	}
}
