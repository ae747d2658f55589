// Package routing decides which web property (free or premium) a user
// should be on.
package routing

import (
	"strings"
	"time"

	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

// Origin is one of the two web properties.
type Origin string

const (
	OriginFree    Origin = "free"
	OriginPremium Origin = "premium"
)

// Reason explains a redirect decision.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonExpired       Reason = "expired"
	ReasonPremiumAccess Reason = "premium_access"
	ReasonFreeUser      Reason = "free_user"
)

// UserView is the subset of user state the router reads.
type UserView struct {
	PlanType      plans.PlanType
	IsPremium     bool
	PlanExpiresAt *time.Time
}

// ViewOf builds a UserView from a stored user.
func ViewOf(u *store.User) UserView {
	return UserView{PlanType: u.PlanType, IsPremium: u.IsPremium, PlanExpiresAt: u.PlanExpiresAt}
}

// Decision is the router's output. An empty RedirectTo means stay.
type Decision struct {
	RedirectTo string `json:"redirect_to,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
}

// Redirect reports whether the decision asks for a redirect.
func (d Decision) Redirect() bool {
	return d.RedirectTo != ""
}

// Router holds the base URLs of both origins.
type Router struct {
	FreeBaseURL    string
	PremiumBaseURL string
}

// Route is a pure function of its inputs. Rules, in order:
//  1. expired plan: off the free origin, go to <free>/upgrade
//  2. premium plan: on the free origin, go to <premium>/dashboard
//  3. free plan: on the premium origin, go to <free>/dashboard
func (r Router) Route(view UserView, origin Origin, now time.Time) Decision {
	if view.PlanExpiresAt != nil && view.PlanExpiresAt.Before(now) {
		if origin != OriginFree {
			return Decision{RedirectTo: join(r.FreeBaseURL, "/upgrade"), Reason: ReasonExpired}
		}
		return Decision{}
	}
	if view.IsPremium && view.PlanType != plans.PlanFree {
		if origin == OriginFree {
			return Decision{RedirectTo: join(r.PremiumBaseURL, "/dashboard"), Reason: ReasonPremiumAccess}
		}
		return Decision{}
	}
	if origin == OriginPremium {
		return Decision{RedirectTo: join(r.FreeBaseURL, "/dashboard"), Reason: ReasonFreeUser}
	}
	return Decision{}
}

// Landing returns the dashboard URL a user should land on, e.g. after a
// payment completes.
func (r Router) Landing(view UserView, now time.Time) string {
	if d := r.Route(view, OriginFree, now); d.Redirect() {
		return d.RedirectTo
	}
	return join(r.FreeBaseURL, "/dashboard")
}

// UpgradeURL is the free origin's upgrade page.
func (r Router) UpgradeURL() string {
	return join(r.FreeBaseURL, "/upgrade")
}

func join(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
