package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
)

const planMetricsInterval = 30 * time.Second

func runPlanMetrics(ctx context.Context, s *store.Store) {
	ticker := time.NewTicker(planMetricsInterval)
	defer ticker.Stop()

	// Prime once at startup so /metrics isn't empty for this gauge.
	updatePlanGauges(ctx, s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updatePlanGauges(ctx, s)
		}
	}
}

func updatePlanGauges(ctx context.Context, s *store.Store) {
	counts, err := s.CountUsersByPlan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to update plan metrics")
		}
		return
	}

	// Stable label set for known plans, plus anything unexpected in the DB.
	for _, p := range plans.All() {
		metrics.UsersByPlan.WithLabelValues(string(p.Type)).Set(float64(counts[p.Type]))
	}
	for planType, c := range counts {
		if plans.Valid(planType) {
			continue
		}
		metrics.UsersByPlan.WithLabelValues(string(planType)).Set(float64(c))
	}
}
