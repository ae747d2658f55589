package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow_WithinLimitThenRejects(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ip := "203.0.113.10"

	if !rl.Allow(ip) || !rl.Allow(ip) {
		t.Fatal("expected first two requests to be allowed")
	}
	if rl.Allow(ip) {
		t.Fatal("expected third request to be rejected")
	}
	if !rl.Allow("203.0.113.11") {
		t.Fatal("limits are per key")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	ip := "203.0.113.20"

	if !rl.Allow(ip) {
		t.Fatal("expected first request to be allowed")
	}
	if rl.Allow(ip) {
		t.Fatal("expected second request inside the window to be rejected")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow(ip) {
		t.Fatal("expected request after the window to be allowed")
	}

	now = now.Add(2 * time.Minute)
	rl.Prune()
	if _, ok := rl.attempts[ip]; ok {
		t.Fatal("expected stale key to be pruned")
	}
}

func TestRateLimiterMiddleware_TooManyRequests(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	calls := 0
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "198.51.100.7:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("clientIP with XFF = %q", got)
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		configured string
		header     string
		value      string
		want       int
	}{
		{"missing", "k", "", "", http.StatusUnauthorized},
		{"wrong", "k", "X-Admin-Key", "nope", http.StatusUnauthorized},
		{"header", "k", "X-Admin-Key", "k", http.StatusOK},
		{"bearer", "k", "Authorization", "Bearer k", http.StatusOK},
		{"unconfigured locks", "", "X-Admin-Key", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			adminKeyMiddleware(tc.configured, ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
