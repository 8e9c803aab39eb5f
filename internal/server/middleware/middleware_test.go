package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type stubLimiter struct {
	allow bool
	err   error
	key   string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.key = key
	return l.allow, l.err
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(okHandler)

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"open path", "/api/health", nil, http.StatusOK},
		{"missing", "/api/stats", nil, http.StatusUnauthorized},
		{"bearer", "/api/stats", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key", "/api/stats", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"query token", "/ws?token=secret", nil, http.StatusOK},
		{"wrong", "/api/stats", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, serve(h, r).Code)
		})
	}

	t.Run("disabled", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		assert.Equal(t, http.StatusOK, serve(Auth("")(okHandler), r).Code)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		lim := &stubLimiter{}
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		r.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
		rec := serve(RateLimit(lim, 60, time.Minute)(okHandler), r)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
		assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
		assert.Equal(t, "api:10.0.0.7", lim.key)
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		lim := &stubLimiter{err: errors.New("redis down")}
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		assert.Equal(t, http.StatusOK, serve(RateLimit(lim, 1, time.Second)(okHandler), r).Code)
	})
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Real-IP", " 198.51.100.4 ")
	assert.Equal(t, "198.51.100.4", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://desk.example"})(okHandler)

	r := httptest.NewRequest(http.MethodOptions, "/api/detections", nil)
	r.Header.Set("Origin", "https://desk.example")
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://desk.example", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/detections", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
