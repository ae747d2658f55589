package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

// DeductResult describes the outcome of a minute deduction.
type DeductResult struct {
	User           *store.User
	UsageRecordID  string
	MinutesCharged int64
	// Duplicate is true when the request id was already charged; nothing was
	// deducted and UsageRecordID points at the earlier record.
	Duplicate bool
}

// Meter gates and charges recording minutes.
type Meter struct {
	store   *store.Store
	sweeper *Sweeper
}

// NewMeter creates a Meter. The sweeper may be nil, in which case balances
// are checked without the lazy expiry sweep.
func NewMeter(s *store.Store, sweeper *Sweeper) *Meter {
	return &Meter{store: s, sweeper: sweeper}
}

// CheckBalance returns the usable balance or USAGE_LIMIT_EXCEEDED. It must be
// called before any external transcription call.
func (m *Meter) CheckBalance(ctx context.Context, userID int64) (plans.Minutes, error) {
	if m.sweeper != nil {
		if _, err := m.sweeper.SweepIfExpired(ctx, userID); err != nil {
			return 0, err
		}
	}
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("check balance: %w", err)
	}
	if u == nil {
		return 0, internalerrors.NotFound("check_balance", userSubject(userID))
	}
	if !u.MinutesRemaining.Available() {
		return 0, internalerrors.UsageLimitExceeded("check_balance", userSubject(userID))
	}
	return u.MinutesRemaining, nil
}

// Deduct charges ceil(durationSeconds/60) minutes. The balance never drops
// below zero and unlimited balances are left as they are; a usage record is
// appended in every case. A non-empty requestID makes the call idempotent.
func (m *Meter) Deduct(ctx context.Context, userID, durationSeconds int64, requestID string) (*DeductResult, error) {
	if durationSeconds < 0 {
		return nil, internalerrors.Validation("deduct", "duration must not be negative, got %d", durationSeconds)
	}
	charge := plans.DurationToMinutes(durationSeconds)

	var result DeductResult
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		if requestID != "" {
			prior, err := tx.GetUsageByRequestID(ctx, userID, requestID)
			if err != nil {
				return err
			}
			if prior != nil {
				result.Duplicate = true
				result.UsageRecordID = prior.ID
				result.MinutesCharged = prior.MinutesCharged
				return nil
			}
		}

		remaining, found, err := tx.DeductMinutes(ctx, userID, charge)
		if err != nil {
			return err
		}
		if !found {
			return internalerrors.NotFound("deduct", userSubject(userID))
		}

		rec := &store.UsageRecord{
			UserID:           userID,
			DurationSeconds:  durationSeconds,
			MinutesCharged:   charge,
			MinutesRemaining: remaining,
			RequestID:        requestID,
		}
		if err := tx.AppendUsage(ctx, rec); err != nil {
			return err
		}
		result.UsageRecordID = rec.ID
		result.MinutesCharged = charge
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another process charged the same request id first.
			return m.duplicate(ctx, userID, requestID)
		}
		if internalerrors.KindOf(err) != internalerrors.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("deduct minutes: %w", err)
	}

	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("deduct minutes: reload user: %w", err)
	}
	result.User = u

	if !result.Duplicate && u != nil {
		metrics.MinutesDeductedTotal.WithLabelValues(string(u.PlanType)).Add(float64(charge))
		log.Debug().
			Int64("user_id", userID).
			Int64("minutes_charged", charge).
			Str("minutes_remaining", u.MinutesRemaining.String()).
			Msg("Recording minutes deducted")
	}
	return &result, nil
}

func (m *Meter) duplicate(ctx context.Context, userID int64, requestID string) (*DeductResult, error) {
	prior, err := m.store.GetUsageByRequestID(ctx, userID, requestID)
	if err != nil {
		return nil, fmt.Errorf("deduct minutes: load prior charge: %w", err)
	}
	if prior == nil {
		return nil, fmt.Errorf("deduct minutes: request %q conflicted but no record found", requestID)
	}
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("deduct minutes: reload user: %w", err)
	}
	return &DeductResult{
		User:           u,
		UsageRecordID:  prior.ID,
		MinutesCharged: prior.MinutesCharged,
		Duplicate:      true,
	}, nil
}

// History returns the most recent usage records of a user.
func (m *Meter) History(ctx context.Context, userID int64, limit int) ([]*store.UsageRecord, error) {
	records, err := m.store.ListUsage(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("usage history for user %s: %w", strconv.FormatInt(userID, 10), err)
	}
	return records, nil
}
