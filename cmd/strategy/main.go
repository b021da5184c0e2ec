// Command strategy boots the pool-state index, the arbitrage detector, and
// the collectors/price oracle that feed them, publishing every detected
// opportunity onto the signal relay (spec §4.D/§4.E, the direct analogue
// of the teacher's cmd/bot).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashmesh/arbcore/internal/api"
	"github.com/flashmesh/arbcore/internal/arb"
	"github.com/flashmesh/arbcore/internal/collector"
	"github.com/flashmesh/arbcore/internal/config"
	"github.com/flashmesh/arbcore/internal/poolstate"
	"github.com/flashmesh/arbcore/internal/priceoracle"
	"github.com/flashmesh/arbcore/internal/strategyfeed"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

// recentOpportunityCapacity bounds the dashboard's "recent opportunities"
// history.
const recentOpportunityCapacity = 100

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "strategy")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	index := poolstate.New()

	tokens := make([]common.Address, 0, len(cfg.PriceOracle.Tokens))
	for _, hexAddr := range cfg.PriceOracle.Tokens {
		tokens = append(tokens, common.HexToAddress(hexAddr))
	}
	oracle := priceoracle.New(cfg.PriceOracle.BaseURL, cfg.PriceOracle.RequestsPerSecond, tokens, logger)
	go func() {
		if err := oracle.Run(ctx, cfg.PriceOracle.PollInterval); err != nil && ctx.Err() == nil {
			logger.Warn("price oracle stopped", "error", err)
		}
	}()

	thresholds := arb.Thresholds{
		MinProfitUSD:         cfg.Detector.MinProfitUSD,
		MaxPositionPct:       cfg.Detector.MaxPositionPct,
		GasCostUSD:           cfg.Detector.GasCostUSD,
		SlippageToleranceBps: cfg.Detector.SlippageToleranceBps,
	}
	detector := arb.NewDetector(index, oracle, thresholds, cfg.Detector.StrategyID)

	signalPublisher := collector.NewPublisher(cfg.RelayDomains.Signal.SocketPath, logger)
	go func() {
		if err := signalPublisher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("signal publisher stopped", "error", err)
		}
	}()

	marketDataPublish, closeMarketData := marketDataPublishFunc(ctx, cfg, logger)
	defer closeMarketData()

	oppLog := arb.NewOpportunityLog(recentOpportunityCapacity)

	var dashboard *api.Server
	if cfg.Dashboard.Enabled {
		dashboard = api.NewServer(cfg.Dashboard, &dashboardProvider{index: index, log: oppLog}, *cfg, logger)
		go func() {
			if err := dashboard.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
	}

	priceBook := strategyfeed.NewPriceBook()
	onPoolUpdate := func(pool *poolstate.PoolState, nowNs uint64) {
		for _, opp := range detector.OnPoolUpdate(pool, nowNs) {
			oppLog.Record(opp)
			if dashboard != nil {
				dashboard.BroadcastOpportunity(api.NewOpportunityView(opp))
			}
			frame, err := buildSignalFrame(opp)
			if err != nil {
				logger.Warn("build signal frame", "error", err)
				continue
			}
			if err := signalPublisher.Publish(frame); err != nil {
				logger.Warn("publish signal frame", "error", err)
			}
		}
	}

	go runCollectors(ctx, cfg, marketDataPublish, logger)

	consumer := strategyfeed.NewConsumer(cfg.RelayDomains.MarketData.SocketPath, index, priceBook, onPoolUpdate, logger)
	go runConsumerWithReconnect(ctx, consumer, logger)

	go runCleanupSweep(ctx, index, cfg.Cleanup, logger)

	logger.Info("strategy running")
	<-ctx.Done()
	logger.Info("shutting down strategy")
	if dashboard != nil {
		if err := dashboard.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
}

// dashboardProvider adapts the pool-state index and opportunity log to
// api.MetricsProvider.
type dashboardProvider struct {
	index *poolstate.Index
	log   *arb.OpportunityLog
}

func (p *dashboardProvider) PoolCount() int                               { return p.index.Count() }
func (p *dashboardProvider) StaleUpdatesDropped() uint64                  { return p.index.StaleUpdates() }
func (p *dashboardProvider) RecentOpportunities() []arb.OpportunityRecord { return p.log.Recent() }

func runConsumerWithReconnect(ctx context.Context, consumer *strategyfeed.Consumer, logger *slog.Logger) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := consumer.Run(); err != nil {
			logger.Warn("market data consumer disconnected, retrying", "error", err, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func runCollectors(ctx context.Context, cfg *config.Config, publish func([]byte) error, logger *slog.Logger) {
	if cfg.Collectors.Binance.Enabled {
		bc := collector.NewBinanceCollector(cfg.Collectors.Binance.WSURL, cfg.Collectors.Binance.Symbols, publish, logger)
		go func() {
			if err := bc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("binance collector stopped", "error", err)
			}
		}()
	}
	if cfg.Collectors.Kraken.Enabled {
		kc := collector.NewKrakenCollector(cfg.Collectors.Kraken.WSURL, cfg.Collectors.Kraken.Symbols, publish, logger)
		go func() {
			if err := kc.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("kraken collector stopped", "error", err)
			}
		}()
	}
}

// marketDataPublishFunc picks the collectors' transport: the shared-memory
// ring (spec §4.B) when ring_buffer.market_data.path is configured, else
// the market-data relay domain socket (spec §4.C). Returns a close func
// that's always safe to call, even for the socket path.
func marketDataPublishFunc(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func([]byte) error, func()) {
	ringCfg := cfg.RingBuffer.MarketData
	if ringCfg.Path != "" {
		elementSize := ringCfg.ElementSize
		if elementSize == 0 {
			elementSize = 4096
		}
		ring, err := collector.NewRingPublisher(ringCfg.Path, ringCfg.Capacity, elementSize)
		if err != nil {
			logger.Error("create market data ring, falling back to socket", "error", err)
		} else {
			logger.Info("publishing market data onto shared-memory ring", "path", ringCfg.Path)
			return ring.Publish, func() { ring.Close() }
		}
	}

	socketPublisher := collector.NewPublisher(cfg.RelayDomains.MarketData.SocketPath, logger)
	go func() {
		if err := socketPublisher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("market data publisher stopped", "error", err)
		}
	}()
	return socketPublisher.Publish, func() {}
}

func runCleanupSweep(ctx context.Context, index *poolstate.Index, cfg config.CleanupConfig, logger *slog.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := index.CleanupStale(uint64(time.Now().UnixNano()), uint64(cfg.MaxAge))
			if removed > 0 {
				logger.Info("cleanup swept stale pools", "removed", removed)
			}
		}
	}
}

// buildSignalFrame encodes a detector opportunity as an ArbitrageSignalTLV
// frame. OpportunityRecord carries pool identity as a Hash, not a
// PoolId/address, so SourcePool/TargetPool here are derived from the hash
// rather than the pool's real on-chain address; ChainID, venue IDs, and
// the gas/slippage-tolerance echo fields aren't part of OpportunityRecord
// and are left at their zero value.
func buildSignalFrame(opp arb.OpportunityRecord) ([]byte, error) {
	sig := protocol.ArbitrageSignalTLV{
		StrategyID:           opp.StrategyID,
		SignalID:             opp.SignalID,
		SourceVenue:          0,
		TargetVenue:          0,
		TokenIn:              opp.TokenIn,
		TokenOut:             opp.TokenOut,
		ExpectedProfitUSDQ8:  opp.ExpectedProfitUSDQ8,
		RequiredCapitalUSDQ8: 0,
		SpreadBps:            opp.SpreadBps,
		DexFeesQ8:            opp.DexFeesUSDQ8,
		GasCostQ8:            opp.GasCostUSDQ8,
		SlippageQ8:           opp.SlippageUSDQ8,
		NetProfitQ8:          opp.NetProfitUSDQ8,
		ValidUntilUnix:       opp.ValidUntilUnix,
		Priority:             opp.Priority,
		TimestampNs:          opp.TimestampNs,
	}

	hashToAddr := func(h uint64) (addr [20]byte) {
		for i := 19; i >= 12; i-- {
			addr[i] = byte(h)
			h >>= 8
		}
		return addr
	}
	sig.SourcePool = hashToAddr(opp.SourcePoolHash)
	sig.TargetPool = hashToAddr(opp.TargetPoolHash)

	return protocol.NewBuilder(protocol.DomainSignal, protocol.SourceArbitrageStrategy, 0).
		Add(protocol.TLVTypeArbitrageSignal, sig.Encode()).
		Build()
}
