package api

import (
	"time"

	"github.com/flashmesh/arbcore/internal/arb"
	"github.com/flashmesh/arbcore/internal/config"
)

// DashboardSnapshot is the complete read-only dashboard state: pool-index
// health, the detector's recent opportunities, and the running config.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	PoolCount          int    `json:"pool_count"`
	StaleUpdatesDropped uint64 `json:"stale_updates_dropped"`

	RecentOpportunities []OpportunityView `json:"recent_opportunities"`

	Config ConfigSummary `json:"config"`
}

// OpportunityView is the dashboard-facing projection of an
// arb.OpportunityRecord: addresses and big.Ints rendered as strings so the
// JSON is safe to consume without a bignum-aware client.
type OpportunityView struct {
	StrategyID     uint16  `json:"strategy_id"`
	SignalID       uint64  `json:"signal_id"`
	SourcePoolHash uint64  `json:"source_pool_hash"`
	TargetPoolHash uint64  `json:"target_pool_hash"`
	TokenIn        string  `json:"token_in"`
	TokenOut       string  `json:"token_out"`
	OptimalInput   string  `json:"optimal_input"`
	ExpectedOutput string  `json:"expected_output"`
	NetProfitUSD   float64 `json:"net_profit_usd"`
	SpreadBps      uint16  `json:"spread_bps"`
	Priority       uint16  `json:"priority"`
	ValidUntilUnix uint32  `json:"valid_until_unix"`
	TimestampNs    uint64  `json:"timestamp_ns"`
}

// NewOpportunityView converts a detector record for dashboard display.
func NewOpportunityView(o arb.OpportunityRecord) OpportunityView {
	return OpportunityView{
		StrategyID:     o.StrategyID,
		SignalID:       o.SignalID,
		SourcePoolHash: o.SourcePoolHash,
		TargetPoolHash: o.TargetPoolHash,
		TokenIn:        o.TokenIn.Hex(),
		TokenOut:       o.TokenOut.Hex(),
		OptimalInput:   o.OptimalInput.String(),
		ExpectedOutput: o.ExpectedOutput.String(),
		NetProfitUSD:   float64(o.NetProfitUSDQ8) / 1e8,
		SpreadBps:      o.SpreadBps,
		Priority:       o.Priority,
		ValidUntilUnix: o.ValidUntilUnix,
		TimestampNs:    o.TimestampNs,
	}
}

// ConfigSummary is the detector's runtime thresholds, surfaced read-only.
type ConfigSummary struct {
	MinProfitUSD         float64 `json:"min_profit_usd"`
	MaxPositionPct       float64 `json:"max_position_pct"`
	GasCostUSD           float64 `json:"gas_cost_usd"`
	SlippageToleranceBps uint32  `json:"slippage_tolerance_bps"`
}

// NewConfigSummary builds a ConfigSummary from the detector thresholds in
// the running config.
func NewConfigSummary(cfg config.DetectorConfig) ConfigSummary {
	return ConfigSummary{
		MinProfitUSD:         cfg.MinProfitUSD,
		MaxPositionPct:       cfg.MaxPositionPct,
		GasCostUSD:           cfg.GasCostUSD,
		SlippageToleranceBps: cfg.SlippageToleranceBps,
	}
}
