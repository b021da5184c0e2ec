package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/flashmesh/arbcore/internal/clock"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

// BinanceCollector republishes Binance's combined bookTicker stream
// (best bid/ask per symbol) as QuoteTLV frames onto the market-data relay.
type BinanceCollector struct {
	feed    *feed
	publish func([]byte) error
	logger  *slog.Logger
}

type binanceCombinedEnvelope struct {
	Stream string               `json:"stream"`
	Data   binanceBookTickerMsg `json:"data"`
}

type binanceBookTickerMsg struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// NewBinanceCollector builds a collector subscribed to bookTicker updates
// for symbols (lowercase, e.g. "btcusdt") over wsBaseURL (e.g.
// "wss://stream.binance.com:9443"). publish is called with one encoded
// protocol frame per tick.
func NewBinanceCollector(wsBaseURL string, symbols []string, publish func([]byte) error, logger *slog.Logger) *BinanceCollector {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@bookTicker"
	}
	url := strings.TrimRight(wsBaseURL, "/") + "/stream?streams=" + strings.Join(streams, "/")

	c := &BinanceCollector{
		publish: publish,
		logger:  logger.With("component", "collector", "venue", "binance"),
	}
	c.feed = newFeed("binance", url, nil, c.handleMessage, logger)
	return c
}

// Run connects and republishes until ctx is cancelled.
func (c *BinanceCollector) Run(ctx context.Context) error {
	return c.feed.Run(ctx)
}

func (c *BinanceCollector) handleMessage(data []byte) {
	var env binanceCombinedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring unparseable binance message", "error", err)
		return
	}
	if env.Data.Symbol == "" {
		return
	}

	q := protocol.QuoteTLV{
		InstrumentID: instrumentID("binance", env.Data.Symbol),
		BidPriceQ8:   priceToQ8(env.Data.BidPrice),
		AskPriceQ8:   priceToQ8(env.Data.AskPrice),
		BidSize:      sizeToUint64(env.Data.BidQty),
		AskSize:      sizeToUint64(env.Data.AskQty),
		TimestampNs:  clock.NowNs(),
	}

	frame, err := protocol.NewBuilder(protocol.DomainMarketData, protocol.SourceBinanceCollector, 0).
		Add(protocol.TLVTypeQuote, q.Encode()).
		Build()
	if err != nil {
		c.logger.Warn("build quote frame", "error", err)
		return
	}

	if err := c.publish(frame); err != nil {
		c.logger.Warn("publish quote frame", "error", err)
	}
}
