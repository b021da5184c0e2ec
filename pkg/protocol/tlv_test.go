package protocol

import (
	"bytes"
	"math/big"
	"testing"
)

func TestStandardAndExtendedBoundary(t *testing.T) {
	t.Parallel()

	// 255-byte payload must use the standard encoding.
	std := make([]byte, 255)
	for i := range std {
		std[i] = byte(i)
	}
	b := NewBuilder(DomainMarketData, SourcePolygonCollector, 0)
	b.Add(TLVTypeVendorMin, std)
	frame, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	tlvs, err := CollectTLVs(h.Payload(frame))
	if err != nil {
		t.Fatalf("CollectTLVs: %v", err)
	}
	if len(tlvs) != 1 || !bytes.Equal(tlvs[0].Payload, std) {
		t.Fatalf("255-byte round trip failed")
	}

	// 256-byte payload must use the extended encoding, unambiguously.
	ext := make([]byte, 256)
	for i := range ext {
		ext[i] = byte(i)
	}
	b2 := NewBuilder(DomainMarketData, SourcePolygonCollector, 0)
	b2.Add(TLVTypeVendorMin, ext)
	frame2, err := b2.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h2, err := ParseHeader(frame2)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	tlvs2, err := CollectTLVs(h2.Payload(frame2))
	if err != nil {
		t.Fatalf("CollectTLVs: %v", err)
	}
	if len(tlvs2) != 1 || !bytes.Equal(tlvs2[0].Payload, ext) {
		t.Fatalf("256-byte round trip failed")
	}
}

func TestFindTLVStandardAndExtended(t *testing.T) {
	t.Parallel()

	b := NewBuilder(DomainMarketData, SourceBinanceCollector, 0)
	b.Add(TLVTypeTrade, make([]byte, 24))
	b.Add(TLVTypeVendorMin, make([]byte, 300))
	frame, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	h, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	payload := h.Payload(frame)

	if _, ok := FindTLV(payload, TLVTypeTrade); !ok {
		t.Error("FindTLV did not find standard TLV")
	}
	got, ok := FindTLV(payload, TLVTypeVendorMin)
	if !ok || len(got) != 300 {
		t.Errorf("FindTLV extended: ok=%v len=%d, want ok=true len=300", ok, len(got))
	}
	if _, ok := FindTLV(payload, 99); ok {
		t.Error("FindTLV found a type that was never added")
	}
}

func TestTruncatedTLVDetected(t *testing.T) {
	t.Parallel()

	payload := []byte{TLVTypeTrade, 24, 1, 2, 3} // declares 24 bytes, has 3
	_, err := CollectTLVs(payload)
	if _, ok := err.(*TruncatedTLVError); !ok {
		t.Fatalf("err = %v (%T), want *TruncatedTLVError", err, err)
	}
}

func TestPayloadSizeMismatchForKnownType(t *testing.T) {
	t.Parallel()

	payload := []byte{TLVTypeTrade, 10} // Trade is fixed at 24 bytes
	payload = append(payload, make([]byte, 10)...)
	_, err := CollectTLVs(payload)
	if _, ok := err.(*PayloadSizeMismatchError); !ok {
		t.Fatalf("err = %v (%T), want *PayloadSizeMismatchError", err, err)
	}
}

func TestPoolSwapTLVRoundTrip(t *testing.T) {
	t.Parallel()

	swap := PoolSwapTLV{
		VenueID:           7,
		AmountIn:          big.NewInt(1_000_000),
		AmountOut:         big.NewInt(998_000),
		InDecimals:        6,
		OutDecimals:       18,
		SqrtPriceAfterX96: new(big.Int).Lsh(big.NewInt(1), 96),
		TickAfter:         -1234,
		LiquidityAfter:    big.NewInt(123456789),
		TimestampNs:       1_700_000_000_000_000_000,
		BlockNumber:       19_000_000,
	}
	copy(swap.PoolAddr[:], bytes.Repeat([]byte{0xAB}, 20))
	copy(swap.TokenIn[:], bytes.Repeat([]byte{0x01}, 20))
	copy(swap.TokenOut[:], bytes.Repeat([]byte{0x02}, 20))

	encoded := swap.Encode()
	if len(encoded) != PoolSwapTLVSize {
		t.Fatalf("encoded len = %d, want %d", len(encoded), PoolSwapTLVSize)
	}

	decoded, err := ParsePoolSwapTLV(encoded)
	if err != nil {
		t.Fatalf("ParsePoolSwapTLV: %v", err)
	}
	if decoded.VenueID != swap.VenueID {
		t.Errorf("VenueID = %d, want %d", decoded.VenueID, swap.VenueID)
	}
	if decoded.TickAfter != swap.TickAfter {
		t.Errorf("TickAfter = %d, want %d", decoded.TickAfter, swap.TickAfter)
	}
	if decoded.AmountIn.Cmp(swap.AmountIn) != 0 {
		t.Errorf("AmountIn = %s, want %s", decoded.AmountIn, swap.AmountIn)
	}
	if decoded.SqrtPriceAfterX96.Cmp(swap.SqrtPriceAfterX96) != 0 {
		t.Errorf("SqrtPriceAfterX96 = %s, want %s", decoded.SqrtPriceAfterX96, swap.SqrtPriceAfterX96)
	}
	if decoded.PoolAddr != swap.PoolAddr {
		t.Errorf("PoolAddr mismatch")
	}
}

func TestArbitrageSignalTLVRoundTrip(t *testing.T) {
	t.Parallel()

	sig := ArbitrageSignalTLV{
		StrategyID:           21,
		SignalID:             42,
		ChainID:              137,
		SourceVenue:          1,
		TargetVenue:          2,
		ExpectedProfitUSDQ8:  15_000_000_00, // $15.00 in Q8
		RequiredCapitalUSDQ8: 1000_00000000,
		SpreadBps:            35,
		NetProfitQ8:          120_00000000,
		SlippageToleranceBps: 50,
		MaxGasGwei:           40,
		ValidUntilUnix:       1_900_000_000,
		Priority:             1,
		TimestampNs:          1_700_000_000_000_000_000,
	}
	encoded := sig.Encode()
	if len(encoded) != ArbitrageSignalTLVSize {
		t.Fatalf("encoded len = %d, want %d", len(encoded), ArbitrageSignalTLVSize)
	}
	decoded, err := ParseArbitrageSignalTLV(encoded)
	if err != nil {
		t.Fatalf("ParseArbitrageSignalTLV: %v", err)
	}
	if decoded != sig {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", decoded, sig)
	}
}

func BenchmarkParseTLVs(b *testing.B) {
	builder := NewBuilder(DomainMarketData, SourceBinanceCollector, 0)
	builder.Add(TLVTypeTrade, make([]byte, 24))
	frame, err := builder.Build()
	if err != nil {
		b.Fatalf("Build: %v", err)
	}
	h, err := ParseHeader(frame)
	if err != nil {
		b.Fatalf("ParseHeader: %v", err)
	}
	payload := h.Payload(frame)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ParseTLVs(payload, func(TLV) bool { return true })
	}
}
