package protocol

import (
	"encoding/binary"
	"math/big"
)

// All payload shapes are little-endian, packed, with no internal padding.
// u128 fields are encoded as 16 raw bytes, little-endian, decoded into
// *big.Int (unsigned) so arithmetic stays exact per the precision rule
// in spec §3.3 — no float ever touches a reserve, amount, or price.

func putU128(buf []byte, v *big.Int) {
	var b [16]byte
	v.FillBytes(b[:]) // big-endian fill
	for i := 0; i < 16; i++ {
		buf[i] = b[15-i] // reverse to little-endian
	}
}

func getU128(buf []byte) *big.Int {
	var b [16]byte
	for i := 0; i < 16; i++ {
		b[i] = buf[15-i]
	}
	return new(big.Int).SetBytes(b[:])
}

// PoolSwapTLVSize is the fixed encoded size of PoolSwapTLV.
const PoolSwapTLVSize = 2 + 20 + 20 + 20 + 16 + 16 + 1 + 1 + 16 + 4 + 16 + 8 + 8

// PoolSwapTLV is a market-data event describing one observed AMM swap.
type PoolSwapTLV struct {
	VenueID         uint16
	PoolAddr        [20]byte
	TokenIn         [20]byte
	TokenOut        [20]byte
	AmountIn        *big.Int // u128
	AmountOut       *big.Int // u128
	InDecimals      uint8
	OutDecimals     uint8
	SqrtPriceAfterX96 *big.Int // u128, Q64.96
	TickAfter       int32
	LiquidityAfter  *big.Int // u128
	TimestampNs     uint64
	BlockNumber     uint64
}

// Encode writes the packed wire representation of t.
func (t PoolSwapTLV) Encode() []byte {
	buf := make([]byte, PoolSwapTLVSize)
	i := 0
	binary.LittleEndian.PutUint16(buf[i:], t.VenueID)
	i += 2
	copy(buf[i:], t.PoolAddr[:])
	i += 20
	copy(buf[i:], t.TokenIn[:])
	i += 20
	copy(buf[i:], t.TokenOut[:])
	i += 20
	putU128(buf[i:], nonNil(t.AmountIn))
	i += 16
	putU128(buf[i:], nonNil(t.AmountOut))
	i += 16
	buf[i] = t.InDecimals
	i++
	buf[i] = t.OutDecimals
	i++
	putU128(buf[i:], nonNil(t.SqrtPriceAfterX96))
	i += 16
	binary.LittleEndian.PutUint32(buf[i:], uint32(t.TickAfter))
	i += 4
	putU128(buf[i:], nonNil(t.LiquidityAfter))
	i += 16
	binary.LittleEndian.PutUint64(buf[i:], t.TimestampNs)
	i += 8
	binary.LittleEndian.PutUint64(buf[i:], t.BlockNumber)
	return buf
}

// ParsePoolSwapTLV decodes a PoolSwapTLV from its exact-size payload slice.
func ParsePoolSwapTLV(payload []byte) (PoolSwapTLV, error) {
	if len(payload) != PoolSwapTLVSize {
		return PoolSwapTLV{}, &PayloadSizeMismatchError{Type: TLVTypePoolSwap, Expected: PoolSwapTLVSize, Got: len(payload)}
	}
	var t PoolSwapTLV
	i := 0
	t.VenueID = binary.LittleEndian.Uint16(payload[i:])
	i += 2
	copy(t.PoolAddr[:], payload[i:i+20])
	i += 20
	copy(t.TokenIn[:], payload[i:i+20])
	i += 20
	copy(t.TokenOut[:], payload[i:i+20])
	i += 20
	t.AmountIn = getU128(payload[i:])
	i += 16
	t.AmountOut = getU128(payload[i:])
	i += 16
	t.InDecimals = payload[i]
	i++
	t.OutDecimals = payload[i]
	i++
	t.SqrtPriceAfterX96 = getU128(payload[i:])
	i += 16
	t.TickAfter = int32(binary.LittleEndian.Uint32(payload[i:]))
	i += 4
	t.LiquidityAfter = getU128(payload[i:])
	i += 16
	t.TimestampNs = binary.LittleEndian.Uint64(payload[i:])
	i += 8
	t.BlockNumber = binary.LittleEndian.Uint64(payload[i:])
	return t, nil
}

// QuoteTLVSize is the fixed encoded size of QuoteTLV.
const QuoteTLVSize = 8 + 8 + 8 + 8 + 8 + 8

// QuoteTLV is a top-of-book quote for a CEX instrument or on-chain pair.
// Prices are fixed-point: 8 decimals for USD-quoted instruments, native
// integer units for on-chain token amounts (spec §3.3).
type QuoteTLV struct {
	InstrumentID uint64
	BidPriceQ8   int64
	AskPriceQ8   int64
	BidSize      uint64
	AskSize      uint64
	TimestampNs  uint64
}

func (q QuoteTLV) Encode() []byte {
	buf := make([]byte, QuoteTLVSize)
	binary.LittleEndian.PutUint64(buf[0:], q.InstrumentID)
	binary.LittleEndian.PutUint64(buf[8:], uint64(q.BidPriceQ8))
	binary.LittleEndian.PutUint64(buf[16:], uint64(q.AskPriceQ8))
	binary.LittleEndian.PutUint64(buf[24:], q.BidSize)
	binary.LittleEndian.PutUint64(buf[32:], q.AskSize)
	binary.LittleEndian.PutUint64(buf[40:], q.TimestampNs)
	return buf
}

func ParseQuoteTLV(payload []byte) (QuoteTLV, error) {
	if len(payload) != QuoteTLVSize {
		return QuoteTLV{}, &PayloadSizeMismatchError{Type: TLVTypeQuote, Expected: QuoteTLVSize, Got: len(payload)}
	}
	return QuoteTLV{
		InstrumentID: binary.LittleEndian.Uint64(payload[0:]),
		BidPriceQ8:   int64(binary.LittleEndian.Uint64(payload[8:])),
		AskPriceQ8:   int64(binary.LittleEndian.Uint64(payload[16:])),
		BidSize:      binary.LittleEndian.Uint64(payload[24:]),
		AskSize:      binary.LittleEndian.Uint64(payload[32:]),
		TimestampNs:  binary.LittleEndian.Uint64(payload[40:]),
	}, nil
}

// ArbitrageSignalTLVSize is the fixed encoded size of ArbitrageSignalTLV.
const ArbitrageSignalTLVSize = 2 + 8 + 4 + 20 + 20 + 2 + 2 + 20 + 20 + 8 + 8 + 2 + 8 + 8 + 8 + 8 + 2 + 4 + 4 + 2 + 2 + 8

// ArbitrageSignalTLV is the compact signal emitted to the signal relay.
type ArbitrageSignalTLV struct {
	StrategyID            uint16
	SignalID              uint64
	ChainID               uint32
	SourcePool            [20]byte
	TargetPool            [20]byte
	SourceVenue           uint16
	TargetVenue           uint16
	TokenIn               [20]byte
	TokenOut              [20]byte
	ExpectedProfitUSDQ8   int64
	RequiredCapitalUSDQ8  int64
	SpreadBps             uint16
	DexFeesQ8             int64
	GasCostQ8             int64
	SlippageQ8            int64
	NetProfitQ8           int64
	SlippageToleranceBps  uint16
	MaxGasGwei            uint32
	ValidUntilUnix        uint32
	Priority              uint16
	Reserved              uint16
	TimestampNs           uint64
}

func (s ArbitrageSignalTLV) Encode() []byte {
	buf := make([]byte, ArbitrageSignalTLVSize)
	i := 0
	put16 := func(v uint16) { binary.LittleEndian.PutUint16(buf[i:], v); i += 2 }
	put32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[i:], v); i += 4 }
	put64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[i:], v); i += 8 }
	putAddr := func(a [20]byte) { copy(buf[i:], a[:]); i += 20 }

	put16(s.StrategyID)
	put64(s.SignalID)
	put32(s.ChainID)
	putAddr(s.SourcePool)
	putAddr(s.TargetPool)
	put16(s.SourceVenue)
	put16(s.TargetVenue)
	putAddr(s.TokenIn)
	putAddr(s.TokenOut)
	put64(uint64(s.ExpectedProfitUSDQ8))
	put64(uint64(s.RequiredCapitalUSDQ8))
	put16(s.SpreadBps)
	put64(uint64(s.DexFeesQ8))
	put64(uint64(s.GasCostQ8))
	put64(uint64(s.SlippageQ8))
	put64(uint64(s.NetProfitQ8))
	put16(s.SlippageToleranceBps)
	put32(s.MaxGasGwei)
	put32(s.ValidUntilUnix)
	put16(s.Priority)
	put16(s.Reserved)
	put64(s.TimestampNs)
	return buf
}

func ParseArbitrageSignalTLV(payload []byte) (ArbitrageSignalTLV, error) {
	if len(payload) != ArbitrageSignalTLVSize {
		return ArbitrageSignalTLV{}, &PayloadSizeMismatchError{Type: TLVTypeArbitrageSignal, Expected: ArbitrageSignalTLVSize, Got: len(payload)}
	}
	var s ArbitrageSignalTLV
	i := 0
	get16 := func() uint16 { v := binary.LittleEndian.Uint16(payload[i:]); i += 2; return v }
	get32 := func() uint32 { v := binary.LittleEndian.Uint32(payload[i:]); i += 4; return v }
	get64 := func() uint64 { v := binary.LittleEndian.Uint64(payload[i:]); i += 8; return v }
	getAddr := func() (a [20]byte) { copy(a[:], payload[i:i+20]); i += 20; return }

	s.StrategyID = get16()
	s.SignalID = get64()
	s.ChainID = get32()
	s.SourcePool = getAddr()
	s.TargetPool = getAddr()
	s.SourceVenue = get16()
	s.TargetVenue = get16()
	s.TokenIn = getAddr()
	s.TokenOut = getAddr()
	s.ExpectedProfitUSDQ8 = int64(get64())
	s.RequiredCapitalUSDQ8 = int64(get64())
	s.SpreadBps = get16()
	s.DexFeesQ8 = int64(get64())
	s.GasCostQ8 = int64(get64())
	s.SlippageQ8 = int64(get64())
	s.NetProfitQ8 = int64(get64())
	s.SlippageToleranceBps = get16()
	s.MaxGasGwei = get32()
	s.ValidUntilUnix = get32()
	s.Priority = get16()
	s.Reserved = get16()
	s.TimestampNs = get64()
	return s, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
