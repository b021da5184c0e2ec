package protocol

import (
	"encoding/binary"
	"math/big"
)

// OpportunityTLVSize is the fixed encoded size of OpportunityTLV.
//
// Supplemented beyond the distilled spec's ArbitrageSignalTLV: original_source's
// zero_copy_builder.rs/debug_message_sizes.rs carry a richer opportunity
// payload (optimal_amount, expected_output as exact integers alongside the
// USD-denominated fields) than the minimal ArbitrageSignal the spec
// describes. OpportunityTLV is that richer shape, used for the detector's
// internal OpportunityRecord (spec §4.E) when the full exact-integer trade
// plan — not just the USD summary — must cross the wire to an execution
// consumer.
const OpportunityTLVSize = 2 + 8 + 8 + 8 + 20 + 20 + 16 + 16 + 8 + 8 + 8 + 8 + 8 + 2 + 2 + 4 + 8

// OpportunityTLV carries a full OpportunityRecord (spec §4.E) including the
// exact-integer trade plan, not just its USD summary.
type OpportunityTLV struct {
	StrategyID          uint16
	SignalID            uint64
	SourcePoolHash      uint64
	TargetPoolHash      uint64
	TokenIn             [20]byte
	TokenOut            [20]byte
	OptimalInput        *big.Int // u128, exact integer
	ExpectedOutput      *big.Int // u128, exact integer
	ExpectedProfitUSDQ8 int64
	GasCostUSDQ8        int64
	DexFeesUSDQ8        int64
	SlippageUSDQ8       int64
	NetProfitUSDQ8      int64
	SpreadBps           uint16
	Priority            uint16
	ValidUntilUnix      uint32
	TimestampNs         uint64
}

func (o OpportunityTLV) Encode() []byte {
	buf := make([]byte, OpportunityTLVSize)
	i := 0
	put16 := func(v uint16) { binary.LittleEndian.PutUint16(buf[i:], v); i += 2 }
	put32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[i:], v); i += 4 }
	put64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[i:], v); i += 8 }
	putAddr := func(a [20]byte) { copy(buf[i:], a[:]); i += 20 }
	put128 := func(v *big.Int) { putU128(buf[i:], nonNil(v)); i += 16 }

	put16(o.StrategyID)
	put64(o.SignalID)
	put64(o.SourcePoolHash)
	put64(o.TargetPoolHash)
	putAddr(o.TokenIn)
	putAddr(o.TokenOut)
	put128(o.OptimalInput)
	put128(o.ExpectedOutput)
	put64(uint64(o.ExpectedProfitUSDQ8))
	put64(uint64(o.GasCostUSDQ8))
	put64(uint64(o.DexFeesUSDQ8))
	put64(uint64(o.SlippageUSDQ8))
	put64(uint64(o.NetProfitUSDQ8))
	put16(o.SpreadBps)
	put16(o.Priority)
	put32(o.ValidUntilUnix)
	put64(o.TimestampNs)
	return buf
}

func ParseOpportunityTLV(payload []byte) (OpportunityTLV, error) {
	if len(payload) != OpportunityTLVSize {
		return OpportunityTLV{}, &PayloadSizeMismatchError{Type: TLVTypeOpportunity, Expected: OpportunityTLVSize, Got: len(payload)}
	}
	var o OpportunityTLV
	i := 0
	get16 := func() uint16 { v := binary.LittleEndian.Uint16(payload[i:]); i += 2; return v }
	get32 := func() uint32 { v := binary.LittleEndian.Uint32(payload[i:]); i += 4; return v }
	get64 := func() uint64 { v := binary.LittleEndian.Uint64(payload[i:]); i += 8; return v }
	getAddr := func() (a [20]byte) { copy(a[:], payload[i:i+20]); i += 20; return }
	get128 := func() *big.Int { v := getU128(payload[i:]); i += 16; return v }

	o.StrategyID = get16()
	o.SignalID = get64()
	o.SourcePoolHash = get64()
	o.TargetPoolHash = get64()
	o.TokenIn = getAddr()
	o.TokenOut = getAddr()
	o.OptimalInput = get128()
	o.ExpectedOutput = get128()
	o.ExpectedProfitUSDQ8 = int64(get64())
	o.GasCostUSDQ8 = int64(get64())
	o.DexFeesUSDQ8 = int64(get64())
	o.SlippageUSDQ8 = int64(get64())
	o.NetProfitUSDQ8 = int64(get64())
	o.SpreadBps = get16()
	o.Priority = get16()
	o.ValidUntilUnix = get32()
	o.TimestampNs = get64()
	return o, nil
}
