package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/craftai-co-in/superflow/internal/auth"
	"github.com/craftai-co-in/superflow/internal/billing"
	"github.com/craftai-co-in/superflow/internal/gateway"
	"github.com/craftai-co-in/superflow/internal/logging"
	"github.com/craftai-co-in/superflow/internal/receipt"
	"github.com/craftai-co-in/superflow/internal/recording"
	"github.com/craftai-co-in/superflow/internal/routing"
	"github.com/craftai-co-in/superflow/internal/store"
	"github.com/craftai-co-in/superflow/internal/voice"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config     *Config
	Store      *store.Store
	Ledger     *billing.Ledger
	Meter      *billing.Meter
	Orders     *billing.OrderTracker
	Activator  *billing.Activator
	Reconciler *billing.Reconciler
	Sweeper    *billing.Sweeper
	Gateway    gateway.Adapter
	Router     routing.Router
	Classifier *routing.Classifier
	Sessions   *auth.SessionManager
	Accounts   *auth.Accounts
	Google     *auth.GoogleProvider // nil when Google sign-in is not configured
	Recordings *recording.Pipeline
	Receipts   *receipt.Generator
	Version    string

	now func() time.Time
}

// NewDeps wires the billing, routing and auth components around one store,
// gateway and voice provider.
func NewDeps(cfg *Config, s *store.Store, gw gateway.Adapter, provider voice.Provider) *Deps {
	sweeper := billing.NewSweeper(s)
	meter := billing.NewMeter(s, sweeper)
	orders := billing.NewOrderTracker(s)
	activator := billing.NewActivator(s)

	return &Deps{
		Config:     cfg,
		Store:      s,
		Ledger:     billing.NewLedger(s),
		Meter:      meter,
		Orders:     orders,
		Activator:  activator,
		Reconciler: billing.NewReconciler(orders, activator, gw),
		Sweeper:    sweeper,
		Gateway:    gw,
		Router:     routing.Router{FreeBaseURL: cfg.FreeURL, PremiumBaseURL: cfg.PremiumURL},
		Classifier: routing.NewClassifier(cfg.FreeHosts, cfg.PremiumHosts),
		Sessions: auth.NewSessionManager(s, auth.SessionConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.SecureCookies(),
		}),
		Accounts:   auth.NewAccounts(s),
		Recordings: recording.NewPipeline(s, meter, provider),
		Receipts:   receipt.NewGenerator(),
		now:        time.Now,
	}
}

// Handler wires all routes and the shared middleware.
func (d *Deps) Handler() http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, d)
	return logging.Middleware(securityHeaders(mux))
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, d *Deps) {
	adminAuth := func(next http.Handler) http.Handler {
		return adminKeyMiddleware(d.Config.AdminKey, next)
	}
	authLimiter := NewRateLimiter(20, time.Minute)
	webhookLimiter := NewRateLimiter(120, time.Minute)

	// Health / readiness are unauthenticated probes.
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", d.handleReadyz)

	metricsHandler := promhttp.Handler()
	if d.Config.PublicMetrics {
		mux.Handle("GET /metrics", metricsHandler)
	} else {
		mux.Handle("GET /metrics", adminAuth(metricsHandler))
	}
	mux.Handle("GET /admin/users", adminAuth(http.HandlerFunc(d.handleAdminUsers)))

	mux.HandleFunc("GET /api/plans", handlePlans)

	// Payments. The webhook and return URL authenticate through the gateway,
	// not the session.
	mux.Handle("POST /api/payments/webhook", webhookLimiter.Middleware(http.HandlerFunc(d.handleWebhook)))
	mux.HandleFunc("GET /payment/return", d.handlePaymentReturn)
	mux.HandleFunc("POST /payment/return", d.handlePaymentReturn)
	mux.Handle("POST /api/payments/checkout", d.requireUser(d.handleCheckout))
	mux.Handle("POST /api/payments/verify", d.requireUser(d.handleVerify))
	mux.Handle("GET /api/payments/status", d.requireUser(d.handlePaymentStatus))
	mux.Handle("GET /api/payments", d.requireUser(d.handleListOrders))
	mux.Handle("GET /api/payments/{order_id}/receipt", d.requireUser(d.handleReceipt))

	// Accounts and sessions.
	mux.Handle("POST /api/auth/signup", authLimiter.Middleware(http.HandlerFunc(d.handleSignup)))
	mux.Handle("POST /api/auth/login", authLimiter.Middleware(http.HandlerFunc(d.handleLogin)))
	mux.HandleFunc("POST /api/auth/logout", d.handleLogout)
	mux.HandleFunc("GET /api/auth/check", d.handleAuthCheck)
	mux.HandleFunc("GET /auth/google/login", d.handleGoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", d.handleGoogleCallback)
	mux.Handle("DELETE /api/account", d.requireUser(d.handleDeleteAccount))

	// Plan and usage.
	mux.Handle("GET /api/plan", d.requireUser(d.handlePlan))
	mux.Handle("GET /api/usage", d.requireUser(d.handleUsage))

	// Recordings.
	mux.Handle("POST /api/recordings", d.requireUser(d.handleCreateRecording))
	mux.Handle("GET /api/recordings", d.requireUser(d.handleListRecordings))
	mux.Handle("DELETE /api/recordings/{id}", d.requireUser(d.handleDeleteRecording))

	// Pages apply the cross-domain router before anything is served.
	for _, page := range []string{"dashboard", "record", "upgrade"} {
		mux.HandleFunc("GET /"+page, d.handlePage(page))
	}
	if d.Config.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(d.Config.StaticDir)))
	}
}
