// Package billing implements plan state, minute metering, payment orders,
// idempotent plan activation and plan expiry for Superflow users.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

// PlanStatus is the plan view of a user.
type PlanStatus struct {
	PlanType         plans.PlanType `json:"plan_type"`
	MinutesRemaining plans.Minutes  `json:"minutes_remaining"`
	IsPremium        bool           `json:"is_premium"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
}

// PlanChange is the full plan triple. Partial updates are not supported.
type PlanChange struct {
	PlanType  plans.PlanType
	Minutes   plans.Minutes
	ExpiresAt *time.Time
}

// Downgrade is the plan change applied when a premium plan lapses.
func Downgrade() PlanChange {
	return PlanChange{PlanType: plans.PlanFree, Minutes: plans.FreeMinutes}
}

// Ledger reads and writes a user's plan state.
type Ledger struct {
	store *store.Store
}

// NewLedger creates a Ledger.
func NewLedger(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// GetPlanStatus returns the stored plan state of a user.
func (l *Ledger) GetPlanStatus(ctx context.Context, userID int64) (*PlanStatus, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get plan status: %w", err)
	}
	if u == nil {
		return nil, internalerrors.NotFound("get_plan_status", userSubject(userID))
	}
	return StatusOf(u), nil
}

// SetPlan replaces the plan triple of a user. IsPremium is always derived
// from the plan type.
func (l *Ledger) SetPlan(ctx context.Context, userID int64, change PlanChange) (*store.User, error) {
	return setPlan(ctx, l.store, userID, change)
}

// StatusOf projects a user record onto its plan status.
func StatusOf(u *store.User) *PlanStatus {
	return &PlanStatus{
		PlanType:         u.PlanType,
		MinutesRemaining: u.MinutesRemaining,
		IsPremium:        u.IsPremium,
		ExpiresAt:        u.PlanExpiresAt,
	}
}

func setPlan(ctx context.Context, s *store.Store, userID int64, change PlanChange) (*store.User, error) {
	if err := validateChange(change); err != nil {
		return nil, err
	}
	u, err := s.SetPlan(ctx, userID, change.PlanType, change.Minutes, change.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("set plan: %w", err)
	}
	if u == nil {
		return nil, internalerrors.NotFound("set_plan", userSubject(userID))
	}
	return u, nil
}

func validateChange(change PlanChange) error {
	if !plans.Valid(change.PlanType) {
		return internalerrors.Validation("set_plan", "unknown plan type %q", change.PlanType)
	}
	if change.PlanType == plans.PlanFree && change.ExpiresAt != nil {
		return internalerrors.Validation("set_plan", "free plan cannot carry an expiry")
	}
	if change.Minutes < 0 && !change.Minutes.IsUnlimited() {
		return internalerrors.Validation("set_plan", "minutes must not be negative, got %d", int64(change.Minutes))
	}
	return nil
}

func userSubject(userID int64) string {
	return "user " + strconv.FormatInt(userID, 10)
}
