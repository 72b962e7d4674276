package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted proxy keeps remote", []string{"10.0.0.0/8"}, "203.0.113.9:5000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.9:5000"},
		{"trusted proxy real ip", []string{"10.0.0.0/8"}, "10.1.2.3:5000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "198.51.100.1"},
		{"trusted single address", []string{"127.0.0.1"}, "127.0.0.1:5000",
			map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"invalid header ignored", []string{"127.0.0.1"}, "127.0.0.1:5000",
			map[string]string{"X-Real-IP": "not-an-ip"}, "127.0.0.1:5000"},
		{"no trusted proxies", nil, "10.1.2.3:5000",
			map[string]string{"X-Real-IP": "198.51.100.1"}, "10.1.2.3:5000"},
		{"bad entry skipped", []string{"bogus", "10.0.0.0/8"}, "10.9.9.9:1",
			map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		keys []string
		key  string
		want int
	}{
		{"disabled", nil, "", http.StatusNoContent},
		{"missing key", []string{"k1"}, "", http.StatusUnauthorized},
		{"wrong key", []string{"k1"}, "nope", http.StatusForbidden},
		{"second key", []string{"k1", "k2"}, "k2", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			APIKeyAuth(tt.keys)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLogger_CapturesStatusAndBytes(t *testing.T) {
	var ww *responseWriter
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ww = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, ww.status)
	assert.Equal(t, 5, ww.bytes)
}

func TestRequestLevel(t *testing.T) {
	health := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	api := httptest.NewRequest(http.MethodGet, "/api/runs", nil)

	assert.Equal(t, slog.LevelDebug, requestLevel(health, 200))
	assert.Equal(t, slog.LevelError, requestLevel(health, 503))
	assert.Equal(t, slog.LevelInfo, requestLevel(api, 200))
	assert.Equal(t, slog.LevelWarn, requestLevel(api, 404))
}
