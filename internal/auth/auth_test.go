package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Error("expected password to match its hash")
	}
	if CheckPasswordHash("wrong horse", hash) {
		t.Error("expected wrong password to fail")
	}
	if CheckPasswordHash("", "") {
		t.Error("empty hash must never match")
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("expected short password to be rejected")
	}
	if err := ValidatePassword(strings.Repeat("a", 80)); err == nil {
		t.Error("expected over-long password to be rejected")
	}
}

func TestGenerateTokenRandError(t *testing.T) {
	original := randRead
	defer func() { randRead = original }()
	randRead = func(b []byte) (int, error) { return 0, errors.New("forced error") }

	if _, err := GenerateToken(); err == nil {
		t.Fatal("expected error when rand.Read fails")
	}
}

func TestSignupAndLogin(t *testing.T) {
	accounts := NewAccounts(newTestStore(t))
	ctx := context.Background()

	u, err := accounts.Signup(ctx, "  Asha@Example.com ", "password123")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.Email != "asha@example.com" || u.MinutesRemaining != 30 {
		t.Errorf("signed up user = %+v", u)
	}

	if _, err := accounts.Signup(ctx, "asha@example.com", "password456"); !errors.Is(err, internalerrors.ErrValidation) {
		t.Errorf("duplicate signup err = %v, want validation", err)
	}
	if _, err := accounts.Signup(ctx, "not-an-email", "password123"); !errors.Is(err, internalerrors.ErrValidation) {
		t.Errorf("bad email err = %v, want validation", err)
	}

	got, err := accounts.Login(ctx, "ASHA@example.com", "password123")
	if err != nil || got.ID != u.ID {
		t.Fatalf("Login = %+v, %v", got, err)
	}
	if _, err := accounts.Login(ctx, "asha@example.com", "nope"); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("bad password err = %v, want unauthorized", err)
	}
	if _, err := accounts.Login(ctx, "ghost@example.com", "password123"); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("unknown user err = %v, want unauthorized", err)
	}
}

func TestLoginGoogleLinksAndCreates(t *testing.T) {
	s := newTestStore(t)
	accounts := NewAccounts(s)
	ctx := context.Background()

	existing, err := accounts.Signup(ctx, "linked@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	linked, err := accounts.LoginGoogle(ctx, &GoogleIdentity{Subject: "g-1", Email: "Linked@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("LoginGoogle link: %v", err)
	}
	if linked.ID != existing.ID || linked.GoogleSubject != "g-1" {
		t.Errorf("linked user = %+v", linked)
	}

	again, err := accounts.LoginGoogle(ctx, &GoogleIdentity{Subject: "g-1", Email: "changed@example.com"})
	if err != nil || again.ID != existing.ID {
		t.Fatalf("LoginGoogle by subject = %+v, %v", again, err)
	}

	created, err := accounts.LoginGoogle(ctx, &GoogleIdentity{Subject: "g-2", Email: "new@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("LoginGoogle create: %v", err)
	}
	if created.ID == existing.ID || created.PasswordHash != "" {
		t.Errorf("created user = %+v", created)
	}

	if _, err := accounts.LoginGoogle(ctx, &GoogleIdentity{Subject: "g-3", Email: "x@example.com"}); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("unverified email err = %v, want unauthorized", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	u := &store.User{Email: "session@example.com"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	mgr := NewSessionManager(s, SessionConfig{Domain: ".superflow.in", Secure: true, TTL: time.Hour})
	mgr.SetClock(func() time.Time { return now })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	if err := mgr.Create(context.Background(), rec, req, u.ID); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Domain != "superflow.in" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", c)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	authReq.AddCookie(&http.Cookie{Name: CookieName, Value: c.Value})
	got, err := mgr.Authenticate(context.Background(), authReq)
	if err != nil || got.ID != u.ID {
		t.Fatalf("Authenticate = %+v, %v", got, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := mgr.Authenticate(context.Background(), authReq); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("expired session err = %v, want unauthorized", err)
	}
	if n, err := mgr.Cleanup(context.Background()); err != nil || n != 1 {
		t.Errorf("Cleanup = %d, %v", n, err)
	}

	if err := mgr.Destroy(context.Background(), httptest.NewRecorder(), authReq); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := mgr.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil)); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("missing cookie err = %v, want unauthorized", err)
	}
}

func TestUserContext(t *testing.T) {
	if UserFrom(context.Background()) != nil {
		t.Fatal("expected nil user on empty context")
	}
	u := &store.User{ID: 9}
	if got := UserFrom(WithUser(context.Background(), u)); got != u {
		t.Fatalf("UserFrom = %v", got)
	}
}

func TestSanitizeReturnTo(t *testing.T) {
	cases := map[string]string{
		"":                  "/dashboard",
		"/record":           "/record",
		"https://evil.test": "/dashboard",
		"//evil.test/x":     "/dashboard",
		"/\\evil.test":      "/dashboard",
	}
	for in, want := range cases {
		if got := sanitizeReturnTo(in); got != want {
			t.Errorf("sanitizeReturnTo(%q) = %q, want %q", in, got, want)
		}
	}
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signingInput := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func TestGoogleProviderExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	const issuer = "https://accounts.google.com"

	var nonce string
	var gotVerifier string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotVerifier = r.Form.Get("code_verifier")
		now := time.Now()
		idToken := signIDToken(t, key, map[string]any{
			"iss":            issuer,
			"aud":            "client",
			"sub":            "google-sub-1",
			"email":          "g@example.com",
			"email_verified": true,
			"nonce":          nonce,
			"iat":            now.Unix(),
			"exp":            now.Add(time.Hour).Unix(),
		})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access","token_type":"Bearer","expires_in":3600,"id_token":%q}`, idToken)
	}))
	defer tokenServer.Close()

	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "client"})
	provider := newGoogleProvider(&oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.superflow.in/auth/google/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.google.com/o/oauth2/v2/auth", TokenURL: tokenServer.URL},
		Scopes:       []string{oidc.ScopeOpenID, "email"},
	}, verifier, tokenServer.Client())

	authURL, err := provider.AuthCodeURL("/record")
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := parsed.Query()
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		t.Errorf("auth url missing PKCE: %s", authURL)
	}
	nonce = q.Get("nonce")
	state := q.Get("state")
	if nonce == "" || state == "" {
		t.Fatalf("auth url missing state or nonce: %s", authURL)
	}

	id, returnTo, err := provider.Exchange(context.Background(), state, "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if id.Subject != "google-sub-1" || id.Email != "g@example.com" || !id.EmailVerified {
		t.Errorf("identity = %+v", id)
	}
	if returnTo != "/record" {
		t.Errorf("returnTo = %q", returnTo)
	}
	if gotVerifier == "" {
		t.Error("token request did not carry a code_verifier")
	}

	if _, _, err := provider.Exchange(context.Background(), state, "auth-code"); !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Errorf("replayed state err = %v, want unauthorized", err)
	}
}

func TestGoogleProviderRejectsNonceMismatch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	const issuer = "https://accounts.google.com"
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		idToken := signIDToken(t, key, map[string]any{
			"iss": issuer, "aud": "client", "sub": "s", "email": "e@example.com",
			"nonce": "attacker", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"a","token_type":"Bearer","id_token":%q}`, idToken)
	}))
	defer tokenServer.Close()

	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{ClientID: "client"})
	provider := newGoogleProvider(&oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.google.com/auth", TokenURL: tokenServer.URL},
	}, verifier, tokenServer.Client())

	authURL, err := provider.AuthCodeURL("")
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	_, _, err = provider.Exchange(context.Background(), parsed.Query().Get("state"), "code")
	if !errors.Is(err, internalerrors.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}
