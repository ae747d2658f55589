// Package email sends transactional plan emails.
package email

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/billing"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

const sendTimeout = 15 * time.Second

// Notifier turns plan transitions into emails. Its methods match the
// billing hook signatures.
type Notifier struct {
	sender       Sender
	from         string
	dashboardURL string
	upgradeURL   string
}

// NewNotifier creates a Notifier.
func NewNotifier(sender Sender, from, dashboardURL, upgradeURL string) *Notifier {
	return &Notifier{sender: sender, from: from, dashboardURL: dashboardURL, upgradeURL: upgradeURL}
}

// PlanActivated emails the buyer of a freshly activated order.
func (n *Notifier) PlanActivated(ctx context.Context, a billing.Activation) {
	if a.User == nil || a.Order == nil {
		return
	}
	plan, _ := plans.Lookup(a.Order.PlanType)
	expires := "the end of your billing period"
	if a.User.PlanExpiresAt != nil {
		expires = a.User.PlanExpiresAt.Format("2 January 2006")
	}
	html, text, err := RenderPlanActivatedEmail(PlanActivatedData{
		PlanName:     plan.DisplayName,
		Minutes:      a.User.MinutesRemaining.String(),
		ExpiresOn:    expires,
		OrderID:      a.Order.OrderID,
		DashboardURL: n.dashboardURL,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", a.Order.OrderID).Msg("Failed to render activation email")
		return
	}
	n.send(ctx, Message{To: a.User.Email, Subject: "Your Superflow " + plan.DisplayName + " plan is active", HTML: html, Text: text, Tag: "plan-activated"})
}

// PlanExpired emails a user who was just downgraded from previous.
func (n *Notifier) PlanExpired(ctx context.Context, u *store.User, previous plans.PlanType) {
	if u == nil {
		return
	}
	plan, ok := plans.Lookup(previous)
	if !ok {
		plan.DisplayName = string(previous)
	}
	html, text, err := RenderPlanExpiredEmail(PlanExpiredData{PlanName: plan.DisplayName, UpgradeURL: n.upgradeURL})
	if err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to render expiry email")
		return
	}
	n.send(ctx, Message{To: u.Email, Subject: "Your Superflow plan has ended", HTML: html, Text: text, Tag: "plan-expired"})
}

func (n *Notifier) send(ctx context.Context, msg Message) {
	msg.From = n.from
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := n.sender.Send(ctx, msg); err != nil {
		log.Warn().Err(err).Str("to", msg.To).Str("tag", msg.Tag).Msg("Failed to send email")
	}
}
