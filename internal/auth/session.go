// Package auth handles accounts, login sessions and Google sign-in.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/store"
)

const (
	// CookieName is the session cookie shared by the free and premium origins.
	CookieName = "superflow_session"

	// DefaultSessionTTL is how long a login lasts.
	DefaultSessionTTL = 30 * 24 * time.Hour
)

var randRead = rand.Read

type contextKey string

const contextKeyUser contextKey = "user"

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, u)
}

// UserFrom returns the authenticated user stored on ctx, or nil.
func UserFrom(ctx context.Context) *store.User {
	if u, ok := ctx.Value(contextKeyUser).(*store.User); ok {
		return u
	}
	return nil
}

// SessionConfig configures SessionManager.
type SessionConfig struct {
	// Domain is the parent domain both origins share, e.g. "superflow.in".
	// Empty scopes the cookie to the serving host.
	Domain string
	Secure bool
	TTL    time.Duration
}

// SessionManager issues and resolves cookie sessions.
type SessionManager struct {
	store  *store.Store
	domain string
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(s *store.Store, cfg SessionConfig) *SessionManager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store:  s,
		domain: strings.TrimPrefix(strings.TrimSpace(cfg.Domain), "."),
		secure: cfg.Secure,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the session clock.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// GenerateToken returns a random 256-bit hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := randRead(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the SHA-256 hex digest stored in place of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create starts a session for userID and sets the cookie on w.
func (m *SessionManager) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error {
	token, err := GenerateToken()
	if err != nil {
		return err
	}
	now := m.now()
	sess := &store.Session{
		TokenHash: HashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
		UserAgent: truncate(r.UserAgent(), 255),
		IP:        clientIP(r),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(token, sess.ExpiresAt))
	return nil
}

// Authenticate resolves the request's session cookie to a user. It returns
// an UNAUTHORIZED error when there is no valid session.
func (m *SessionManager) Authenticate(ctx context.Context, r *http.Request) (*store.User, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, internalerrors.New(internalerrors.KindUnauthorized, "authenticate", fmt.Errorf("no session"))
	}
	sess, err := m.store.GetSession(ctx, HashToken(c.Value))
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.ExpiresAt.After(m.now()) {
		return nil, internalerrors.New(internalerrors.KindUnauthorized, "authenticate", fmt.Errorf("session expired"))
	}
	u, err := m.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, internalerrors.New(internalerrors.KindUnauthorized, "authenticate", fmt.Errorf("account no longer exists"))
	}
	return u, nil
}

// Destroy ends the request's session and clears the cookie.
func (m *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if err := m.store.DeleteSession(ctx, HashToken(c.Value)); err != nil {
			return err
		}
	}
	expired := m.cookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	return nil
}

// Cleanup removes expired sessions.
func (m *SessionManager) Cleanup(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now())
}

func (m *SessionManager) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
