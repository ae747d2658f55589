package server

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/auth"
	"github.com/craftai-co-in/superflow/internal/billing"
	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/routing"
	"github.com/craftai-co-in/superflow/internal/store"
)

const defaultUsageLimit = 50

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *store.User         `json:"user,omitempty"`
	Plan          *billing.PlanStatus `json:"plan,omitempty"`
	DaysLeft      int                 `json:"days_left"`
	Redirect      *routing.Decision   `json:"redirect,omitempty"`
}

type planResponse struct {
	*billing.PlanStatus
	DaysLeft int `json:"days_left"`
}

func handlePlans(w http.ResponseWriter, _ *http.Request) {
	all := plans.All()
	out := make([]plans.Plan, 0, len(all))
	for _, p := range all {
		if p.Type == plans.PlanFree {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

func (d *Deps) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		d.writeError(w, r, err)
		return
	}
	u, err := d.Accounts.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if err := d.Sessions.Create(r.Context(), w, r, u.ID); err != nil {
		d.writeError(w, r, err)
		return
	}
	d.writeAuthenticated(w, r, http.StatusCreated, u, routing.ViewOf(u))
}

func (d *Deps) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		d.writeError(w, r, err)
		return
	}
	u, err := d.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if err := d.Sessions.Create(r.Context(), w, r, u.ID); err != nil {
		d.writeError(w, r, err)
		return
	}
	// Log-in is an authenticated request like any other: lapsed plans are
	// swept before the response describes them.
	u, view := d.sweepLazily(r.Context(), u)
	d.writeAuthenticated(w, r, http.StatusOK, u, view)
}

func (d *Deps) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := d.Sessions.Destroy(r.Context(), w, r); err != nil {
		d.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleAuthCheck reports the session state and where the client should be.
// Anonymous visitors get 200 with authenticated=false.
func (d *Deps) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	u, view, err := d.currentUser(r)
	if err != nil {
		if internalerrors.KindOf(err) != internalerrors.KindUnauthorized {
			d.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Authenticated: false})
		return
	}
	d.writeAuthenticated(w, r, http.StatusOK, u, view)
}

func (d *Deps) writeAuthenticated(w http.ResponseWriter, r *http.Request, status int, u *store.User, view routing.UserView) {
	now := d.now()
	resp := authResponse{
		Authenticated: true,
		User:          u,
		Plan:          billing.StatusOf(u),
		DaysLeft:      billing.DaysLeft(u.PlanExpiresAt, now),
	}
	decision := d.Router.Route(view, d.Classifier.Classify(r.Host), now)
	if decision.Redirect() {
		metrics.RedirectsTotal.WithLabelValues(string(decision.Reason)).Inc()
		resp.Redirect = &decision
	}
	writeJSON(w, status, resp)
}

func (d *Deps) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if d.Google == nil {
		writeErrorCode(w, http.StatusNotFound, internalerrors.KindNotFound, "Google sign-in is not configured")
		return
	}
	target, err := d.Google.AuthCodeURL(r.URL.Query().Get("return_to"))
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (d *Deps) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if d.Google == nil {
		writeErrorCode(w, http.StatusNotFound, internalerrors.KindNotFound, "Google sign-in is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Warn().Str("error", e).Msg("Google sign-in was not completed")
		http.Redirect(w, r, withQuery(d.Config.FreeURL, "login", "failed"), http.StatusFound)
		return
	}

	identity, returnTo, err := d.Google.Exchange(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		log.Warn().Err(err).Msg("Google sign-in failed")
		http.Redirect(w, r, withQuery(d.Config.FreeURL, "login", "failed"), http.StatusFound)
		return
	}
	u, err := d.Accounts.LoginGoogle(r.Context(), identity)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if err := d.Sessions.Create(r.Context(), w, r, u.ID); err != nil {
		d.writeError(w, r, err)
		return
	}

	// Premium users land on the premium origin regardless of where the
	// flow started.
	target := d.Router.Landing(routing.ViewOf(u), d.now())
	if returnTo != "/dashboard" {
		target = d.Config.FreeURL + returnTo
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (d *Deps) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	if err := d.Accounts.Delete(r.Context(), u.ID); err != nil {
		d.writeError(w, r, err)
		return
	}
	_ = d.Sessions.Destroy(r.Context(), w, r)
	log.Info().Int64("user_id", u.ID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) handlePlan(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	writeJSON(w, http.StatusOK, planResponse{
		PlanStatus: billing.StatusOf(u),
		DaysLeft:   billing.DaysLeft(u.PlanExpiresAt, d.now()),
	})
}

func (d *Deps) handleUsage(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	limit := defaultUsageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			d.writeError(w, r, internalerrors.Validation("usage", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := d.Meter.History(r.Context(), u.ID, limit)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*store.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usage":             records,
		"minutes_remaining": u.MinutesRemaining,
	})
}
