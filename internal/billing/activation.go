package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

// Activation is the outcome of activating a paid order.
type Activation struct {
	// AlreadyProcessed is true when the order was paid before this call.
	AlreadyProcessed bool
	User             *store.User
	Order            *store.PaymentOrder
}

// ActivationHook runs once per order, after the paid transition commits.
type ActivationHook func(ctx context.Context, a Activation)

// Activator applies paid orders to user plans exactly once.
type Activator struct {
	store *store.Store
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	hooks []ActivationHook
}

// NewActivator creates an Activator.
func NewActivator(s *store.Store) *Activator {
	return &Activator{store: s, now: time.Now}
}

// SetClock overrides the activation clock.
func (a *Activator) SetClock(now func() time.Time) {
	a.now = now
}

// OnActivate registers a hook for non-financial side effects (emails, metrics).
func (a *Activator) OnActivate(h ActivationHook) {
	a.mu.Lock()
	a.hooks = append(a.hooks, h)
	a.mu.Unlock()
}

// Activate marks an order paid and grants its plan. It is safe to call from
// every payment entry point any number of times: the status compare-and-swap
// lets exactly one call apply the plan, and every other call reports
// AlreadyProcessed.
func (a *Activator) Activate(ctx context.Context, orderID string) (*Activation, error) {
	// Once the write begins it runs to completion even if the caller goes away.
	var leader bool
	v, err, shared := a.group.Do(orderID, func() (any, error) {
		leader = true
		return a.activate(context.WithoutCancel(ctx), orderID)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Activation)
	if shared && !leader {
		res.AlreadyProcessed = true
	}
	return &res, nil
}

func (a *Activator) activate(ctx context.Context, orderID string) (*Activation, error) {
	order, err := a.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	if order == nil {
		log.Error().Str("order_id", orderID).Msg("Activation requested for unknown order")
		return nil, internalerrors.OrderNotFound("activate", orderID)
	}
	if order.Status == store.OrderStatusPaid {
		return a.alreadyProcessed(ctx, order)
	}

	plan, ok := plans.Lookup(order.PlanType)
	if !ok || !plan.IsPremium() {
		return nil, internalerrors.Validation("activate", "order %s has non-purchasable plan %q", orderID, order.PlanType)
	}

	now := a.now().UTC()
	var (
		won  bool
		user *store.User
	)
	err = a.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		won, err = tx.MarkOrderPaid(ctx, orderID, now)
		if err != nil || !won {
			return err
		}

		expires := now.AddDate(0, 1, 0)
		user, err = setPlan(ctx, tx, order.UserID, PlanChange{
			PlanType:  plan.Type,
			Minutes:   plan.Minutes,
			ExpiresAt: &expires,
		})
		if err != nil {
			return err
		}

		return tx.AppendUsage(ctx, &store.UsageRecord{
			UserID:           order.UserID,
			MinutesRemaining: user.MinutesRemaining,
			OrderID:          orderID,
			CreatedAt:        now,
		})
	})
	if err != nil {
		if internalerrors.KindOf(err) != internalerrors.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("activate order %s: %w", orderID, err)
	}

	order, err = a.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("activate: reload order: %w", err)
	}
	if !won {
		return a.alreadyProcessed(ctx, order)
	}

	result := Activation{User: user, Order: order}
	log.Info().
		Str("order_id", orderID).
		Int64("user_id", order.UserID).
		Str("plan", string(plan.Type)).
		Str("minutes", user.MinutesRemaining.String()).
		Time("expires_at", *user.PlanExpiresAt).
		Msg("Plan activated")

	a.mu.RLock()
	hooks := append([]ActivationHook(nil), a.hooks...)
	a.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, result)
	}
	return &result, nil
}

func (a *Activator) alreadyProcessed(ctx context.Context, order *store.PaymentOrder) (*Activation, error) {
	u, err := a.store.GetUser(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("activate: load user: %w", err)
	}
	return &Activation{AlreadyProcessed: true, User: u, Order: order}, nil
}
