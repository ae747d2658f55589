package billing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

const scheduledSweepTimeout = 5 * time.Minute

// SweepResult reports the outcome of an expiry check.
type SweepResult struct {
	WasDowngraded bool `json:"was_downgraded"`
	DaysLeft      int  `json:"days_left"`
}

// DowngradeHook runs after a user has been moved back to the free tier. u is
// the downgraded record; previous is the plan that lapsed.
type DowngradeHook func(ctx context.Context, u *store.User, previous plans.PlanType)

// Sweeper moves lapsed premium users back to the free tier.
type Sweeper struct {
	store *store.Store
	now   func() time.Time

	mu    sync.RWMutex
	hooks []DowngradeHook
}

// NewSweeper creates a Sweeper.
func NewSweeper(s *store.Store) *Sweeper {
	return &Sweeper{store: s, now: time.Now}
}

// SetClock overrides the sweep clock.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// OnDowngrade registers a hook that runs once per downgrade.
func (s *Sweeper) OnDowngrade(h DowngradeHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// DaysLeft returns ceil((expiresAt-now)/24h), or 0 without an expiry.
func DaysLeft(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}

// SweepIfExpired downgrades the user if their premium plan has lapsed. It
// writes only on the transition edge; the store update is conditional, so
// exactly one concurrent caller reports WasDowngraded.
func (s *Sweeper) SweepIfExpired(ctx context.Context, userID int64) (*SweepResult, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	if u == nil {
		return nil, internalerrors.NotFound("sweep", userSubject(userID))
	}

	now := s.now()
	result := &SweepResult{DaysLeft: DaysLeft(u.PlanExpiresAt, now)}
	if u.PlanExpiresAt == nil || result.DaysLeft > 0 || !u.IsPremium {
		return result, nil
	}

	downgraded, err := s.store.DowngradeIfExpired(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	if downgraded {
		result.WasDowngraded = true
		s.downgraded(ctx, userID, u.PlanType, "lazy")
	}
	return result, nil
}

// SweepAll downgrades every premium user whose plan has lapsed and returns
// how many were downgraded.
func (s *Sweeper) SweepAll(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.ListExpiredPremiumUserIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep all: %w", err)
	}

	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		before, err := s.store.GetUser(ctx, id)
		if err != nil || before == nil {
			continue
		}
		downgraded, err := s.store.DowngradeIfExpired(ctx, id, now)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Msg("Expiry sweep: downgrade failed")
			continue
		}
		if downgraded {
			count++
			s.downgraded(ctx, id, before.PlanType, "scheduled")
		}
	}
	return count, nil
}

// RunSchedule runs SweepAll on a cron schedule until ctx is cancelled.
func (s *Sweeper) RunSchedule(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, scheduledSweepTimeout)
		defer cancel()

		count, err := s.SweepAll(runCtx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled expiry sweep failed")
			return
		}
		log.Info().Int("downgraded", count).Msg("Scheduled expiry sweep finished")
	}); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}

	log.Info().Str("schedule", schedule).Msg("Expiry sweep scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("Expiry sweep scheduler stopped")
	return nil
}

func (s *Sweeper) downgraded(ctx context.Context, userID int64, previous plans.PlanType, trigger string) {
	metrics.DowngradesTotal.WithLabelValues(trigger).Inc()
	log.Info().
		Int64("user_id", userID).
		Str("previous_plan", string(previous)).
		Str("trigger", trigger).
		Msg("Premium plan expired; downgraded to free")

	s.mu.RLock()
	hooks := append([]DowngradeHook(nil), s.hooks...)
	s.mu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		return
	}
	for _, h := range hooks {
		h(ctx, u, previous)
	}
}
