package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/craftai-co-in/superflow/internal/plans"
)

var (
	now    = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	router = Router{FreeBaseURL: "https://app.superflow.in", PremiumBaseURL: "https://pro.superflow.in/"}
)

func ptr(t time.Time) *time.Time { return &t }

func TestRouteDecisionTable(t *testing.T) {
	yesterday := ptr(now.Add(-24 * time.Hour))
	nextMonth := ptr(now.AddDate(0, 1, 0))

	tests := []struct {
		name   string
		view   UserView
		origin Origin
		want   Decision
	}{
		{
			name:   "expired premium on premium origin",
			view:   UserView{PlanType: plans.PlanPro, IsPremium: true, PlanExpiresAt: yesterday},
			origin: OriginPremium,
			want:   Decision{RedirectTo: "https://app.superflow.in/upgrade", Reason: ReasonExpired},
		},
		{
			name:   "expired premium on free origin",
			view:   UserView{PlanType: plans.PlanPro, IsPremium: true, PlanExpiresAt: yesterday},
			origin: OriginFree,
			want:   Decision{},
		},
		{
			name:   "active premium on free origin",
			view:   UserView{PlanType: plans.PlanLite, IsPremium: true, PlanExpiresAt: nextMonth},
			origin: OriginFree,
			want:   Decision{RedirectTo: "https://pro.superflow.in/dashboard", Reason: ReasonPremiumAccess},
		},
		{
			name:   "active premium on premium origin",
			view:   UserView{PlanType: plans.PlanMax, IsPremium: true, PlanExpiresAt: nextMonth},
			origin: OriginPremium,
			want:   Decision{},
		},
		{
			name:   "free user on premium origin",
			view:   UserView{PlanType: plans.PlanFree},
			origin: OriginPremium,
			want:   Decision{RedirectTo: "https://app.superflow.in/dashboard", Reason: ReasonFreeUser},
		},
		{
			name:   "free user on free origin",
			view:   UserView{PlanType: plans.PlanFree},
			origin: OriginFree,
			want:   Decision{},
		},
		{
			name:   "inconsistent premium flag on free plan",
			view:   UserView{PlanType: plans.PlanFree, IsPremium: true},
			origin: OriginPremium,
			want:   Decision{RedirectTo: "https://app.superflow.in/dashboard", Reason: ReasonFreeUser},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := router.Route(tc.view, tc.origin, now)
			assert.Equal(t, tc.want, got)
			// Same input, same output.
			assert.Equal(t, got, router.Route(tc.view, tc.origin, now))
		})
	}
}

func TestRouteExpiryBoundary(t *testing.T) {
	view := UserView{PlanType: plans.PlanPro, IsPremium: true, PlanExpiresAt: ptr(now)}
	// Expiring exactly now is not yet in the past.
	assert.Equal(t, Decision{}, router.Route(view, OriginPremium, now))
	assert.Equal(t, ReasonExpired, router.Route(view, OriginPremium, now.Add(time.Second)).Reason)
}

func TestLanding(t *testing.T) {
	premium := UserView{PlanType: plans.PlanPro, IsPremium: true, PlanExpiresAt: ptr(now.Add(time.Hour))}
	assert.Equal(t, "https://pro.superflow.in/dashboard", router.Landing(premium, now))
	assert.Equal(t, "https://app.superflow.in/dashboard", router.Landing(UserView{PlanType: plans.PlanFree}, now))
	assert.Equal(t, "https://app.superflow.in/upgrade", router.UpgradeURL())
}

func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{"app.superflow.in", "localhost"}, []string{"pro.superflow.in", "*.pro.superflow.in"})

	assert.Equal(t, OriginPremium, c.Classify("pro.superflow.in"))
	assert.Equal(t, OriginPremium, c.Classify("PRO.superflow.in:443"))
	assert.Equal(t, OriginPremium, c.Classify("eu.pro.superflow.in"))
	assert.Equal(t, OriginFree, c.Classify("app.superflow.in"))
	assert.Equal(t, OriginFree, c.Classify("localhost:8080"))
	assert.Equal(t, OriginFree, c.Classify("evil.example.com"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "pro.superflow.in", HostOf("https://Pro.Superflow.in:8443/x"))
	assert.Equal(t, "", HostOf("::::"))
}
