// Package strategyfeed bridges the market-data relay's wire frames into
// the poolstate index and the detector's price source: a subscriber
// connection reads PoolSwapTLV/QuoteTLV frames and applies each to
// whichever store it belongs to.
package strategyfeed

import (
	"bufio"
	"log/slog"
	"net"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashmesh/arbcore/internal/poolstate"
	"github.com/flashmesh/arbcore/internal/relay"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

// defaultFeeTierBps is used when a pool's real fee tier isn't carried on
// the wire. PoolSwapTLV reports what happened in a swap, not the pool's
// static fee schedule; a full implementation would resolve fee tier from a
// venue pool registry synced once at pool-discovery time, which this core
// doesn't model yet.
const defaultFeeTierBps = 3000

// PriceBook records the latest CEX top-of-book quote per instrument,
// keyed by QuoteTLV's InstrumentID (a venue+symbol hash, not a token
// address) — it is surfaced to the dashboard for cross-venue visibility,
// not consumed by the detector directly, which prices tokens by address
// through internal/priceoracle.Oracle instead.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[uint64]protocol.QuoteTLV
}

// NewPriceBook returns an empty quote book.
func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[uint64]protocol.QuoteTLV)}
}

// Update records the latest quote for an instrument.
func (b *PriceBook) Update(q protocol.QuoteTLV) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[q.InstrumentID] = q
}

// Quote returns the latest known quote for an instrument, if any.
func (b *PriceBook) Quote(instrumentID uint64) (protocol.QuoteTLV, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.prices[instrumentID]
	return q, ok
}

// Consumer subscribes to the market-data relay and applies every inbound
// frame to the pool-state index (PoolSwapTLV) or the price book
// (QuoteTLV), invoking onPoolUpdate for every pool it touches so the
// caller can drive the detector.
type Consumer struct {
	socketPath string
	index      *poolstate.Index
	prices     *PriceBook
	logger     *slog.Logger
	onPool     func(*poolstate.PoolState, uint64)
}

// NewConsumer builds a market-data consumer. onPoolUpdate is called with
// the updated pool and the frame's timestamp every time a PoolSwapTLV is
// applied.
func NewConsumer(socketPath string, index *poolstate.Index, prices *PriceBook, onPoolUpdate func(*poolstate.PoolState, uint64), logger *slog.Logger) *Consumer {
	return &Consumer{
		socketPath: socketPath,
		index:      index,
		prices:     prices,
		onPool:     onPoolUpdate,
		logger:     logger.With("component", "strategy_feed"),
	}
}

// Run dials the market-data relay as a wildcard subscriber and applies
// frames until the connection closes or an unrecoverable error occurs.
func (c *Consumer) Run() error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := relay.WriteSubscribeTopics(conn, nil); err != nil {
		return err
	}

	br := bufio.NewReader(conn)
	for {
		frame, err := relay.ReadFrame(br, 256*1024)
		if err != nil {
			return err
		}
		c.applyFrame(frame)
	}
}

func (c *Consumer) applyFrame(raw []byte) {
	parsed, err := protocol.Parse(raw)
	if err != nil {
		c.logger.Debug("dropping unparseable market data frame", "error", err)
		return
	}

	parsed.TLVs(func(tlv protocol.TLV) bool {
		switch tlv.Type {
		case protocol.TLVTypePoolSwap:
			swap, err := protocol.ParsePoolSwapTLV(tlv.Payload)
			if err != nil {
				c.logger.Debug("malformed pool swap tlv", "error", err)
				return true
			}
			c.applySwap(swap)
		case protocol.TLVTypeQuote:
			quote, err := protocol.ParseQuoteTLV(tlv.Payload)
			if err != nil {
				c.logger.Debug("malformed quote tlv", "error", err)
				return true
			}
			c.prices.Update(quote)
		}
		return true
	})
}

// applySwap folds a PoolSwapTLV into the pool-state index. Only V3 pools
// carry enough state in the TLV itself (sqrt price, tick, liquidity) to
// reconstruct PoolState directly; a V2 pool's absolute reserves aren't on
// the wire here (only the swap's in/out deltas are), so V2 reserve sync
// needs a separate source (e.g. a periodic on-chain reserve snapshot) not
// wired up by this consumer.
func (c *Consumer) applySwap(swap protocol.PoolSwapTLV) {
	if swap.SqrtPriceAfterX96 == nil || swap.SqrtPriceAfterX96.Sign() == 0 {
		return
	}

	id := poolstate.NewPoolId(poolstate.Venue(swap.VenueID), common.Address(swap.TokenIn), common.Address(swap.TokenOut), defaultFeeTierBps)
	state := &poolstate.PoolState{
		ID:           id,
		Kind:         poolstate.KindV3,
		SqrtPriceX96: swap.SqrtPriceAfterX96,
		Liquidity:    swap.LiquidityAfter,
		Tick:         swap.TickAfter,
		FeeBps:       defaultFeeTierBps,
		LastUpdateNs: swap.TimestampNs,
		BlockNumber:  swap.BlockNumber,
	}
	c.index.Update(state)

	if stored, ok := c.index.Get(id.Hash()); ok {
		c.onPool(stored, swap.TimestampNs)
	}
}
