package api

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashmesh/arbcore/internal/arb"
	"github.com/flashmesh/arbcore/internal/config"
)

type fakeProvider struct {
	poolCount   int
	staleCount  uint64
	recent      []arb.OpportunityRecord
}

func (f fakeProvider) PoolCount() int                               { return f.poolCount }
func (f fakeProvider) StaleUpdatesDropped() uint64                  { return f.staleCount }
func (f fakeProvider) RecentOpportunities() []arb.OpportunityRecord { return f.recent }

func TestBuildSnapshotProjectsOpportunities(t *testing.T) {
	t.Parallel()

	provider := fakeProvider{
		poolCount:  3,
		staleCount: 2,
		recent: []arb.OpportunityRecord{
			{
				SignalID:       7,
				TokenIn:        common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
				TokenOut:       common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
				OptimalInput:   big.NewInt(1000),
				ExpectedOutput: big.NewInt(1010),
				NetProfitUSDQ8: 250_000_000,
				SpreadBps:      42,
			},
		},
	}

	cfg := config.Config{Detector: config.DetectorConfig{MinProfitUSD: 1.5}}
	snap := BuildSnapshot(provider, cfg)

	if snap.PoolCount != 3 || snap.StaleUpdatesDropped != 2 {
		t.Fatalf("unexpected aggregate fields: %+v", snap)
	}
	if len(snap.RecentOpportunities) != 1 {
		t.Fatalf("expected 1 opportunity view, got %d", len(snap.RecentOpportunities))
	}
	view := snap.RecentOpportunities[0]
	if view.SignalID != 7 || view.SpreadBps != 42 {
		t.Errorf("unexpected view: %+v", view)
	}
	if view.NetProfitUSD != 2.5 {
		t.Errorf("NetProfitUSD = %v, want 2.5", view.NetProfitUSD)
	}
	if snap.Config.MinProfitUSD != 1.5 {
		t.Errorf("Config.MinProfitUSD = %v, want 1.5", snap.Config.MinProfitUSD)
	}
}
