// Package server is the Superflow HTTP service: configuration, routes,
// handlers and the process lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/craftai-co-in/superflow/internal/auth"
	"github.com/craftai-co-in/superflow/internal/billing"
	"github.com/craftai-co-in/superflow/internal/email"
	"github.com/craftai-co-in/superflow/internal/gateway"
	"github.com/craftai-co-in/superflow/internal/logging"
	"github.com/craftai-co-in/superflow/internal/netutil"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/routing"
	"github.com/craftai-co-in/superflow/internal/store"
	"github.com/craftai-co-in/superflow/internal/voice"
)

const (
	dnsRefreshInterval     = 5 * time.Minute
	sessionCleanupInterval = time.Hour
	shutdownTimeout        = 30 * time.Second
)

// Run starts the HTTP server and background workers and blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "superflow",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	log.Info().
		Str("version", version).
		Str("gateway_env", string(cfg.GatewayEnv)).
		Str("free_url", cfg.FreeURL).
		Str("premium_url", cfg.PremiumURL).
		Msg("Starting Superflow")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	s, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	dialer := netutil.NewDialer()
	gw, err := gateway.New(gateway.Config{
		Environment: cfg.GatewayEnv,
		AppID:       cfg.CashfreeAppID,
		SecretKey:   cfg.CashfreeSecretKey,
		APIVersion:  cfg.CashfreeVersion,
		Dialer:      dialer,
	})
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	if sb, ok := gw.(*gateway.SandboxAdapter); ok && sb.Offline() {
		log.Warn().Msg("Cashfree credentials not set; sandbox payments are simulated")
	}

	if cfg.OpenAIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; recordings will fail at the provider")
	}
	provider := voice.NewOpenAIClient(voice.Config{
		APIKey:          cfg.OpenAIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		TranscribeModel: cfg.TranscribeModel,
		EnhanceModel:    cfg.EnhanceModel,
		Dialer:          dialer,
	})

	deps := NewDeps(cfg, s, gw, provider)
	deps.Version = version

	if cfg.GoogleEnabled() {
		g, err := auth.NewGoogleProvider(ctx, auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.FreeURL + "/auth/google/callback",
			HTTPClient:   dialer.HTTPClient(15 * time.Second),
		})
		if err != nil {
			// Password sign-in keeps working without Google.
			log.Error().Err(err).Msg("Google sign-in disabled: provider discovery failed")
		} else {
			deps.Google = g
			log.Info().Msg("Google sign-in enabled")
		}
	}

	wireNotifications(deps, NewNotifier(cfg, dialer))

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           deps.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Superflow listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})
	g.Go(func() error {
		runPlanMetrics(gctx, s)
		return nil
	})
	g.Go(func() error {
		runSessionCleanup(gctx, deps.Sessions)
		return nil
	})
	g.Go(func() error {
		dialer.RunRefresh(gctx, dnsRefreshInterval)
		return nil
	})
	if cfg.SweepSchedule != "" {
		g.Go(func() error {
			return deps.Sweeper.RunSchedule(gctx, cfg.SweepSchedule)
		})
	}

	err = g.Wait()
	log.Info().Msg("Superflow stopped")
	return err
}

// NewNotifier builds the plan email notifier from cfg. Without a Postmark
// token emails are only logged.
func NewNotifier(cfg *Config, dialer *netutil.Dialer) *email.Notifier {
	var sender email.Sender
	if cfg.PostmarkToken != "" {
		sender = email.NewPostmarkSender(cfg.PostmarkToken, dialer)
		log.Info().Msg("Email sender configured (Postmark)")
	} else {
		sender = email.LogSender{}
		log.Info().Msg("Email sender: log-only (set POSTMARK_SERVER_TOKEN to enable)")
	}
	router := routing.Router{FreeBaseURL: cfg.FreeURL, PremiumBaseURL: cfg.PremiumURL}
	return email.NewNotifier(sender, cfg.EmailFrom, strings.TrimSuffix(cfg.PremiumURL, "/")+"/dashboard", router.UpgradeURL())
}

// wireNotifications sends lifecycle emails off the request path.
func wireNotifications(d *Deps, n *email.Notifier) {
	d.Activator.OnActivate(func(ctx context.Context, a billing.Activation) {
		go n.PlanActivated(context.WithoutCancel(ctx), a)
	})
	d.Sweeper.OnDowngrade(func(ctx context.Context, u *store.User, previous plans.PlanType) {
		go n.PlanExpired(context.WithoutCancel(ctx), u, previous)
	})
}

func runSessionCleanup(ctx context.Context, sessions *auth.SessionManager) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Cleanup(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Session cleanup failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}
