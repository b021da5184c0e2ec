package strategyfeed

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashmesh/arbcore/internal/poolstate"
	"github.com/flashmesh/arbcore/pkg/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPriceBookUpdateAndQuote(t *testing.T) {
	t.Parallel()

	book := NewPriceBook()
	if _, ok := book.Quote(1); ok {
		t.Fatal("expected no quote before any update")
	}

	book.Update(protocol.QuoteTLV{InstrumentID: 1, BidPriceQ8: 100, AskPriceQ8: 101})
	q, ok := book.Quote(1)
	if !ok {
		t.Fatal("expected quote after update")
	}
	if q.BidPriceQ8 != 100 || q.AskPriceQ8 != 101 {
		t.Errorf("unexpected quote: %+v", q)
	}
}

func TestApplyFrameUpdatesPriceBookOnQuote(t *testing.T) {
	t.Parallel()

	index := poolstate.New()
	book := NewPriceBook()
	var called bool
	c := NewConsumer("", index, book, func(*poolstate.PoolState, uint64) { called = true }, discardLogger())

	quote := protocol.QuoteTLV{InstrumentID: 42, BidPriceQ8: 200, AskPriceQ8: 201, TimestampNs: 5}
	frame, err := protocol.NewBuilder(protocol.DomainMarketData, protocol.SourceBinanceCollector, 0).
		Add(protocol.TLVTypeQuote, quote.Encode()).
		Build()
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}

	c.applyFrame(frame)

	if called {
		t.Error("onPoolUpdate should not fire for a quote-only frame")
	}
	got, ok := book.Quote(42)
	if !ok || got.AskPriceQ8 != 201 {
		t.Fatalf("price book not updated: %+v ok=%v", got, ok)
	}
}

func TestApplySwapUpdatesIndexAndFiresCallback(t *testing.T) {
	t.Parallel()

	index := poolstate.New()
	book := NewPriceBook()

	var gotPool *poolstate.PoolState
	var gotNs uint64
	c := NewConsumer("", index, book, func(p *poolstate.PoolState, ns uint64) {
		gotPool = p
		gotNs = ns
	}, discardLogger())

	tokenIn := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenOut := common.HexToAddress("0x2222222222222222222222222222222222222222")

	swap := protocol.PoolSwapTLV{
		VenueID:           1,
		TokenIn:           [20]byte(tokenIn),
		TokenOut:          [20]byte(tokenOut),
		AmountIn:          big.NewInt(1000),
		AmountOut:         big.NewInt(990),
		SqrtPriceAfterX96: big.NewInt(123456789),
		TickAfter:         100,
		LiquidityAfter:    big.NewInt(5000),
		TimestampNs:       999,
		BlockNumber:       10,
	}

	c.applySwap(swap)

	if gotPool == nil {
		t.Fatal("expected onPoolUpdate to fire")
	}
	if gotNs != 999 {
		t.Errorf("callback timestamp = %d, want 999", gotNs)
	}
	if gotPool.Kind != poolstate.KindV3 {
		t.Errorf("Kind = %v, want KindV3", gotPool.Kind)
	}
	if gotPool.Tick != 100 {
		t.Errorf("Tick = %d, want 100", gotPool.Tick)
	}
	if index.Count() != 1 {
		t.Errorf("index Count = %d, want 1", index.Count())
	}
}

func TestApplySwapIgnoresZeroSqrtPrice(t *testing.T) {
	t.Parallel()

	index := poolstate.New()
	book := NewPriceBook()
	called := false
	c := NewConsumer("", index, book, func(*poolstate.PoolState, uint64) { called = true }, discardLogger())

	c.applySwap(protocol.PoolSwapTLV{SqrtPriceAfterX96: big.NewInt(0)})

	if called {
		t.Error("onPoolUpdate should not fire when SqrtPriceAfterX96 is zero")
	}
	if index.Count() != 0 {
		t.Errorf("index Count = %d, want 0", index.Count())
	}
}
