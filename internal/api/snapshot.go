package api

import (
	"time"

	"github.com/flashmesh/arbcore/internal/arb"
	"github.com/flashmesh/arbcore/internal/config"
)

// MetricsProvider supplies everything BuildSnapshot needs from the running
// strategy process, kept narrow so the dashboard never reaches back into
// poolstate/arb internals directly.
type MetricsProvider interface {
	PoolCount() int
	StaleUpdatesDropped() uint64
	RecentOpportunities() []arb.OpportunityRecord
}

// BuildSnapshot aggregates provider state into a dashboard snapshot.
func BuildSnapshot(provider MetricsProvider, cfg config.Config) DashboardSnapshot {
	recent := provider.RecentOpportunities()
	views := make([]OpportunityView, 0, len(recent))
	for _, o := range recent {
		views = append(views, NewOpportunityView(o))
	}

	return DashboardSnapshot{
		Timestamp:           time.Now(),
		PoolCount:           provider.PoolCount(),
		StaleUpdatesDropped: provider.StaleUpdatesDropped(),
		RecentOpportunities: views,
		Config:              NewConfigSummary(cfg.Detector),
	}
}
