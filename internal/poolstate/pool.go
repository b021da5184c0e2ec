// Package poolstate maintains the current state of every AMM pool observed
// across all venues (spec §4.D): O(1) lookup by pool identity, O(k)
// enumeration of pools containing a token, and O(k) enumeration of pools
// for an unordered token pair, all under a 16-way sharded map so the
// detector's reads never contend with the market-data consumer's writes on
// a single hot lock.
package poolstate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Venue identifies the DEX/protocol a pool belongs to.
type Venue uint16

// PoolId canonicalizes a pool's identity: venue, its two tokens sorted
// ascending, and fee tier. Two pools with the same canonical token set and
// venue but different fee tiers are distinct (spec §4.D).
type PoolId struct {
	Venue   Venue
	Tokens  [2]common.Address
	FeeTier uint32
}

// NewPoolId builds a canonical PoolId from two tokens in any order.
func NewPoolId(venue Venue, tokenA, tokenB common.Address, feeTier uint32) PoolId {
	id := PoolId{Venue: venue, FeeTier: feeTier}
	if bytesLess(tokenA, tokenB) {
		id.Tokens = [2]common.Address{tokenA, tokenB}
	} else {
		id.Tokens = [2]common.Address{tokenB, tokenA}
	}
	return id
}

func bytesLess(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Hash returns the PoolId's 64-bit primary key: the first 8 bytes of
// Keccak256 over venue || token0 || token1 || feeTier, read as a big-endian
// integer. The fields are big-endian encoded so the hash is stable across
// processes and platforms.
func (id PoolId) Hash() uint64 {
	var buf [2 + 20 + 20 + 4]byte
	buf[0] = byte(id.Venue >> 8)
	buf[1] = byte(id.Venue)
	copy(buf[2:22], id.Tokens[0][:])
	copy(buf[22:42], id.Tokens[1][:])
	buf[42] = byte(id.FeeTier >> 24)
	buf[43] = byte(id.FeeTier >> 16)
	buf[44] = byte(id.FeeTier >> 8)
	buf[45] = byte(id.FeeTier)
	digest := crypto.Keccak256(buf[:])
	var h uint64
	for _, b := range digest[:8] {
		h = h<<8 | uint64(b)
	}
	return h
}

// pairKey canonicalizes an unordered token pair for the pair index.
type pairKey [40]byte

func canonicalPair(t0, t1 common.Address) pairKey {
	var k pairKey
	if bytesLess(t0, t1) {
		copy(k[0:20], t0[:])
		copy(k[20:40], t1[:])
	} else {
		copy(k[0:20], t1[:])
		copy(k[20:40], t0[:])
	}
	return k
}

// PoolKind distinguishes the AMM model a pool's reserves/tick data should
// be interpreted under.
type PoolKind uint8

const (
	KindV2 PoolKind = iota
	KindV3
)

// PoolState is the stored snapshot for one pool. V2 fields (Reserve0/1) and
// V3 fields (SqrtPriceX96/Liquidity/Tick) are mutually exclusive depending
// on Kind.
type PoolState struct {
	ID   PoolId
	Kind PoolKind

	// V2 constant-product state.
	Reserve0 *big.Int
	Reserve1 *big.Int

	// V3 concentrated-liquidity state.
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32

	FeeBps       uint32
	LastUpdateNs uint64
	BlockNumber  uint64
}

