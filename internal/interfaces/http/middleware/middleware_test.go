package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"roguelike-forge-api/internal/infrastructure/persistence/redis"
)

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Take(_ context.Context, key string, limit int, _ time.Duration) (redis.Quota, error) {
	if l.err != nil {
		return redis.Quota{}, l.err
	}
	if l.seen == nil {
		l.seen = make(map[string]int)
	}
	if l.seen[key] >= limit {
		return redis.Quota{RetryAfter: 1500 * time.Millisecond}, nil
	}
	l.seen[key]++
	return redis.Quota{Allowed: true, Remaining: limit - l.seen[key]}, nil
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	return r
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "req-123" || w.Body.String() != "req-123" {
		t.Fatalf("expected propagated request id, got header %q body %q", w.Header().Get(RequestIDHeader), w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected generated uuid, got %q", w.Header().Get(RequestIDHeader))
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute}, limiter))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 200,200,429, got %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2, got %q", got)
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no remaining quota, got %q", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := &countingLimiter{}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: false, Limit: 1}, limiter))
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 with limiter disabled, got %d", w.Code)
		}
	}
	if len(limiter.seen) != 0 {
		t.Fatalf("expected limiter untouched, got %v", limiter.seen)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	r := newEngine(RateLimit(RateLimitConfig{Enabled: true, Limit: 1}, limiter))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected request to pass when limiter fails, got %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestRequestIDTooLong(t *testing.T) {
	r := newEngine(RequestID())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	r.ServeHTTP(w, req)
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected oversized id replaced, got %q", w.Header().Get(RequestIDHeader))
	}
}
