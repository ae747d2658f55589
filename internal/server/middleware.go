package server

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/auth"
	"github.com/craftai-co-in/superflow/internal/routing"
	"github.com/craftai-co-in/superflow/internal/store"
)

const (
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
)

// RateLimiter provides simple IP-based rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter with the given limit per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks whether key is within the rate limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	valid := rl.attempts[key][:0]
	for _, t := range rl.attempts[key] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.attempts[key] = valid
		return false
	}
	rl.attempts[key] = append(valid, now)
	return true
}

// Prune drops keys with no attempts inside the window.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	for key, ts := range rl.attempts {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(rl.attempts, key)
		}
	}
}

// Middleware wraps an http.Handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "RATE_LIMITED", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// adminKeyMiddleware requires a valid admin API key in X-Admin-Key or an
// Authorization bearer header. An empty configured key locks the route.
func adminKeyMiddleware(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if key == "" {
			if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
			}
		}
		if adminKey == "" || key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets baseline security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// The recorder needs the microphone; nothing else.
		h.Set("Permissions-Policy", "geolocation=(), microphone=(self), camera=(), usb=()")
		next.ServeHTTP(w, r)
	})
}

// currentUser authenticates the request and applies the lazy expiry sweep,
// so every authenticated handler sees an up-to-date plan. The returned view
// is what the router should see: it is taken before the sweep, so the
// request that downgrades a lapsed plan is still routed as expired.
func (d *Deps) currentUser(r *http.Request) (*store.User, routing.UserView, error) {
	u, err := d.Sessions.Authenticate(r.Context(), r)
	if err != nil {
		return nil, routing.UserView{}, err
	}
	u, view := d.sweepLazily(r.Context(), u)
	return u, view, nil
}

func (d *Deps) sweepLazily(ctx context.Context, u *store.User) (*store.User, routing.UserView) {
	view := routing.ViewOf(u)
	res, err := d.Sweeper.SweepIfExpired(ctx, u.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", u.ID).Msg("Lazy expiry sweep failed")
		return u, view
	}
	if res.WasDowngraded {
		if fresh, err := d.Store.GetUser(ctx, u.ID); err == nil && fresh != nil {
			return fresh, view
		}
	}
	return u, view
}

// requireUser rejects unauthenticated requests and stores the user on the
// request context.
func (d *Deps) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _, err := d.currentUser(r)
		if err != nil {
			d.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}
