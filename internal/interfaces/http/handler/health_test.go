package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func healthy(context.Context) error { return nil }

func unreachable(context.Context) error { return errors.New("connection refused") }

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		required   map[string]HealthChecker
		optional   map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all up",
			required:   map[string]HealthChecker{"postgres": checkerFunc(healthy), "redis": checkerFunc(healthy)},
			optional:   map[string]HealthChecker{"milvus": checkerFunc(healthy)},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "milvus": "ok"},
		},
		{
			name:       "optional down is degraded",
			required:   map[string]HealthChecker{"postgres": checkerFunc(healthy)},
			optional:   map[string]HealthChecker{"milvus": checkerFunc(unreachable)},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "milvus": "degraded"},
		},
		{
			name:       "required down",
			required:   map[string]HealthChecker{"postgres": checkerFunc(healthy), "redis": checkerFunc(unreachable)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
			wantChecks: map[string]string{"postgres": "ok", "redis": "error"},
		},
		{
			name:       "required missing",
			required:   map[string]HealthChecker{"redis": nil},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
			wantChecks: map[string]string{"redis": "missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("1.0.0", tt.required, tt.optional)
			r := gin.New()
			r.GET("/health/ready", h.Ready)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}

			var resp readinessResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Fatalf("expected status %q, got %q", tt.wantStatus, resp.Status)
			}
			for name, want := range tt.wantChecks {
				got, found := resp.Checks[name]
				if !found || got.Status != want {
					t.Fatalf("check %s: expected %q, got %+v", name, want, got)
				}
			}
		})
	}
}

func TestHealthReportsVersion(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler("2.1.0", nil, nil).Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "2.1.0" {
		t.Fatalf("expected ok/2.1.0, got %+v", resp)
	}
}
