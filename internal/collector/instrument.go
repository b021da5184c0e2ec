package collector

import (
	"encoding/binary"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
)

// instrumentID derives a stable QuoteTLV InstrumentID from a venue name and
// a symbol, the same Keccak256-truncation approach poolstate.PoolId.Hash
// uses for on-chain pool identity — reused here so every identity hash in
// the core is derived the same way instead of picking a second hash
// function for CEX instruments.
func instrumentID(venue, symbol string) uint64 {
	sum := crypto.Keccak256([]byte(venue), []byte(symbol))
	return binary.BigEndian.Uint64(sum[:8])
}

// priceToQ8 converts a decimal price string to the Q8 fixed-point
// representation QuoteTLV uses (spec §3.3: 8 decimals for USD-quoted
// instruments). Returns 0 on a malformed input rather than erroring, since
// a single corrupt tick shouldn't take down the collector.
func priceToQ8(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * 1e8)
}

func sizeToUint64(s string) uint64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return uint64(f * 1e8)
}
