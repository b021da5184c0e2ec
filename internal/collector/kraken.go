package collector

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/flashmesh/arbcore/internal/clock"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

// KrakenCollector republishes Kraken's WebSocket v2 ticker channel as
// QuoteTLV frames onto the market-data relay.
type KrakenCollector struct {
	feed    *feed
	symbols []string
	publish func([]byte) error
	logger  *slog.Logger
}

type krakenSubscribeMsg struct {
	Method string            `json:"method"`
	Params krakenSubscribeParams `json:"params"`
}

type krakenSubscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol"`
}

type krakenTickerEnvelope struct {
	Channel string            `json:"channel"`
	Type    string            `json:"type"`
	Data    []krakenTickerTick `json:"data"`
}

type krakenTickerTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	BidQty float64 `json:"bid_qty"`
	Ask    float64 `json:"ask"`
	AskQty float64 `json:"ask_qty"`
}

// NewKrakenCollector builds a collector subscribed to the ticker channel
// for symbols (Kraken's "BASE/QUOTE" form, e.g. "BTC/USD") over wsURL
// (e.g. "wss://ws.kraken.com/v2"). publish is called with one encoded
// protocol frame per tick.
func NewKrakenCollector(wsURL string, symbols []string, publish func([]byte) error, logger *slog.Logger) *KrakenCollector {
	c := &KrakenCollector{
		symbols: symbols,
		publish: publish,
		logger:  logger.With("component", "collector", "venue", "kraken"),
	}
	c.feed = newFeed("kraken", wsURL, c.subscribe, c.handleMessage, logger)
	return c
}

// Run connects and republishes until ctx is cancelled.
func (c *KrakenCollector) Run(ctx context.Context) error {
	return c.feed.Run(ctx)
}

func (c *KrakenCollector) subscribe(conn *websocket.Conn) error {
	msg := krakenSubscribeMsg{
		Method: "subscribe",
		Params: krakenSubscribeParams{
			Channel: "ticker",
			Symbol:  c.symbols,
		},
	}
	return conn.WriteJSON(msg)
}

func (c *KrakenCollector) handleMessage(data []byte) {
	var env krakenTickerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring unparseable kraken message", "error", err)
		return
	}
	if env.Channel != "ticker" {
		return
	}

	for _, tick := range env.Data {
		if tick.Symbol == "" {
			continue
		}
		q := protocol.QuoteTLV{
			InstrumentID: instrumentID("kraken", tick.Symbol),
			BidPriceQ8:   int64(tick.Bid * 1e8),
			AskPriceQ8:   int64(tick.Ask * 1e8),
			BidSize:      uint64(tick.BidQty * 1e8),
			AskSize:      uint64(tick.AskQty * 1e8),
			TimestampNs:  clock.NowNs(),
		}

		frame, err := protocol.NewBuilder(protocol.DomainMarketData, protocol.SourceKrakenCollector, 0).
			Add(protocol.TLVTypeQuote, q.Encode()).
			Build()
		if err != nil {
			c.logger.Warn("build quote frame", "error", err)
			continue
		}

		if err := c.publish(frame); err != nil {
			c.logger.Warn("publish quote frame", "error", err)
		}
	}
}
