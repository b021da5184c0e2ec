package api

import "time"

// DashboardEvent wraps every message pushed to a connected dashboard
// client: an initial "snapshot" on connect, a "snapshot" on every periodic
// broadcast tick, and an "opportunity" event per detector signal as it's
// published.
type DashboardEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewSnapshotEvent wraps a full snapshot.
func NewSnapshotEvent(snap DashboardSnapshot) DashboardEvent {
	return DashboardEvent{Type: "snapshot", Timestamp: snap.Timestamp, Data: snap}
}

// NewOpportunityEvent wraps a single freshly-detected opportunity.
func NewOpportunityEvent(o OpportunityView) DashboardEvent {
	return DashboardEvent{Type: "opportunity", Timestamp: time.Now(), Data: o}
}
