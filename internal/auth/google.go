package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
)

const (
	googleIssuer  = "https://accounts.google.com"
	stateTTL      = 10 * time.Minute
	maxStateCount = 10000
)

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

type stateEntry struct {
	Nonce        string
	CodeVerifier string
	ReturnTo     string
	ExpiresAt    time.Time
}

// GoogleProvider runs the OAuth2 authorization code flow with PKCE against
// Google and verifies the returned ID token.
type GoogleProvider struct {
	oauth2Cfg  *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	states map[string]*stateEntry
}

// NewGoogleProvider discovers Google's OIDC endpoints.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google sign-in requires a client id and secret")
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc provider: %w", err)
	}
	oauth2Cfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newGoogleProvider(oauth2Cfg, verifier, cfg.HTTPClient), nil
}

func newGoogleProvider(oauth2Cfg *oauth2.Config, verifier *oidc.IDTokenVerifier, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		oauth2Cfg:  oauth2Cfg,
		verifier:   verifier,
		httpClient: client,
		now:        time.Now,
		states:     make(map[string]*stateEntry),
	}
}

// AuthCodeURL starts a login and returns the Google consent URL.
func (g *GoogleProvider) AuthCodeURL(returnTo string) (string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", err
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", err
	}
	entry := &stateEntry{
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		ReturnTo:     sanitizeReturnTo(returnTo),
		ExpiresAt:    g.now().Add(stateTTL),
	}

	g.mu.Lock()
	g.pruneLocked()
	if len(g.states) >= maxStateCount {
		g.mu.Unlock()
		return "", fmt.Errorf("too many pending google logins")
	}
	g.states[state] = entry
	g.mu.Unlock()

	return g.oauth2Cfg.AuthCodeURL(state,
		oidc.Nonce(entry.Nonce),
		oauth2.S256ChallengeOption(entry.CodeVerifier),
	), nil
}

// Exchange completes a login. It consumes state, trades the code for tokens
// and verifies the ID token. returnTo is the path passed to AuthCodeURL.
func (g *GoogleProvider) Exchange(ctx context.Context, state, code string) (id *GoogleIdentity, returnTo string, err error) {
	entry, ok := g.consumeState(state)
	if !ok {
		return nil, "", unauthorized("google_callback", "invalid or expired state")
	}
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}

	token, err := g.oauth2Cfg.Exchange(ctx, code, oauth2.VerifierOption(entry.CodeVerifier))
	if err != nil {
		return nil, "", fmt.Errorf("exchange google code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", unauthorized("google_callback", "token response has no id_token")
	}
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, "", internalerrors.New(internalerrors.KindUnauthorized, "google_callback", fmt.Errorf("verify id token: %w", err))
	}
	if idToken.Nonce != entry.Nonce {
		return nil, "", unauthorized("google_callback", "nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, "", fmt.Errorf("decode id token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, "", unauthorized("google_callback", "id token has no email")
	}
	return &GoogleIdentity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, entry.ReturnTo, nil
}

func (g *GoogleProvider) consumeState(state string) (*stateEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.states[state]
	if !ok {
		return nil, false
	}
	delete(g.states, state)
	if g.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

func (g *GoogleProvider) pruneLocked() {
	now := g.now()
	for k, v := range g.states {
		if now.After(v.ExpiresAt) {
			delete(g.states, k)
		}
	}
}

// sanitizeReturnTo only allows local absolute paths.
func sanitizeReturnTo(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "/dashboard"
	}
	return p
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func unauthorized(op, msg string) error {
	return internalerrors.New(internalerrors.KindUnauthorized, op, errors.New(msg))
}
