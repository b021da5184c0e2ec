// Package arb implements the arbitrage detector (spec §4.E): given a pool
// that just changed, it finds economically meaningful two-leg arbitrage
// opportunities against other pools sharing the same token pair, prices
// them net of fees/gas/slippage, and emits a signal when net profit clears
// a configured floor.
package arb

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flashmesh/arbcore/internal/arb/amm"
	"github.com/flashmesh/arbcore/internal/poolstate"
)

// PoolsMismatched is returned when two candidate pools claim different
// token pairs (a programming error upstream, since FindArbitragePairs
// already filters by pair, but checked defensively at the detector
// boundary).
type PoolsMismatched struct{}

func (PoolsMismatched) Error() string { return "arb: pools do not share a token pair" }

// BelowThreshold is returned when a candidate's net profit or slippage
// fails the configured floor/ceiling.
type BelowThreshold struct{ Reason string }

func (e BelowThreshold) Error() string { return "arb: below threshold: " + e.Reason }

// Thresholds are the runtime-overridable detector settings named in spec
// §4.E.
type Thresholds struct {
	MinProfitUSD        float64
	MaxPositionPct       float64 // fraction of source reserves
	GasCostUSD           float64 // baseline; GasPriceTracker can override per call
	SlippageToleranceBps uint32
}

// DefaultThresholds match the values original_source uses for its baseline
// scanner pass.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinProfitUSD:         1.0,
		MaxPositionPct:       0.10,
		GasCostUSD:           2.0,
		SlippageToleranceBps: 100,
	}
}

// PriceSource supplies token prices in USD; sourcing prices is explicitly
// out of scope for the detector (spec §4.E step 6).
type PriceSource interface {
	USDPrice(token common.Address) (float64, bool)
}

// OpportunityRecord is the detector's output, fields exactly per spec
// §4.E.
type OpportunityRecord struct {
	StrategyID           uint16
	SignalID             uint64
	SourcePoolHash       uint64
	TargetPoolHash       uint64
	TokenIn              common.Address
	TokenOut             common.Address
	OptimalInput         *big.Int
	ExpectedOutput       *big.Int
	ExpectedProfitUSDQ8  int64
	GasCostUSDQ8         int64
	DexFeesUSDQ8         int64
	SlippageUSDQ8        int64
	NetProfitUSDQ8       int64
	SpreadBps            uint16
	Priority             uint16
	ValidUntilUnix       uint32
	TimestampNs          uint64
}

const usdQ8Scale = 100_000_000

func toQ8(v float64) int64 { return int64(v * usdQ8Scale) }

// Detector runs the nine-step pipeline of spec §4.E against a shared
// poolstate.Index.
type Detector struct {
	index      *poolstate.Index
	thresholds Thresholds
	gas        *GasPriceTracker
	prices     PriceSource

	strategyID uint16
	nextSignal uint64
}

// NewDetector constructs a Detector reading from index, pricing via prices,
// and applying thresholds.
func NewDetector(index *poolstate.Index, prices PriceSource, thresholds Thresholds, strategyID uint16) *Detector {
	return &Detector{
		index:      index,
		thresholds: thresholds,
		gas:        NewGasPriceTracker(20),
		prices:     prices,
		strategyID: strategyID,
	}
}

// GasTracker exposes the detector's gas price tracker so callers can feed
// it fresh observations.
func (d *Detector) GasTracker() *GasPriceTracker { return d.gas }

// OnPoolUpdate runs the full pipeline for a pool that just changed: update
// the index (step 1, done by the caller before invoking this — the
// detector only reads), enumerate candidates (step 2), and evaluate each
// (steps 3-9), returning every opportunity that clears the thresholds.
func (d *Detector) OnPoolUpdate(pool *poolstate.PoolState, nowNs uint64) []OpportunityRecord {
	candidates := d.index.FindArbitragePairs(pool.ID)
	var opportunities []OpportunityRecord
	for _, candidate := range candidates {
		if rec, err := d.evaluate(pool, candidate, nowNs); err == nil {
			opportunities = append(opportunities, rec)
		}
	}
	return opportunities
}

// evaluate runs steps 3-9 for one (pool, candidate) pair, trying both
// directions and keeping whichever is profitable (spec §4.E step 3: "For
// each candidate, compute the forward and reverse trade ... retain the
// direction whose theoretical profit is positive").
func (d *Detector) evaluate(a, b *poolstate.PoolState, nowNs uint64) (OpportunityRecord, error) {
	if a.ID.Tokens != b.ID.Tokens {
		return OpportunityRecord{}, PoolsMismatched{}
	}

	token0, token1 := a.ID.Tokens[0], a.ID.Tokens[1]

	// The closed-form optimal size only applies to V2/V2 pairs (spec §4.E
	// AMM math contract); any pair with a V3 leg falls back to the
	// fixed-test-amount approximation those legs are scoped to.
	tryFn := d.tryDirection
	if a.Kind != poolstate.KindV2 || b.Kind != poolstate.KindV2 {
		tryFn = d.tryDirectionApprox
	}

	forward, fwdErr := tryFn(a, b, token0, token1, nowNs)
	reverse, revErr := tryFn(a, b, token1, token0, nowNs)

	switch {
	case fwdErr == nil && revErr == nil:
		if forward.NetProfitUSDQ8 >= reverse.NetProfitUSDQ8 {
			return forward, nil
		}
		return reverse, nil
	case fwdErr == nil:
		return forward, nil
	case revErr == nil:
		return reverse, nil
	default:
		return OpportunityRecord{}, fwdErr
	}
}

func (d *Detector) tryDirection(a, b *poolstate.PoolState, tokenIn, tokenOut common.Address, nowNs uint64) (OpportunityRecord, error) {
	reserveInA, reserveOutA := reservesFor(a, tokenIn, tokenOut)
	reserveInB, reserveOutB := reservesFor(b, tokenOut, tokenIn)
	if reserveInA == nil || reserveOutA == nil || reserveInB == nil || reserveOutB == nil {
		return OpportunityRecord{}, amm.NoLiquidity{Reason: "missing reserve for direction"}
	}

	pools := amm.TwoLegPools{
		ReserveInA:  reserveInA,
		ReserveOutA: reserveOutA,
		FeeBpsA:     a.FeeBps,
		ReserveInB:  reserveInB,
		ReserveOutB: reserveOutB,
		FeeBpsB:     b.FeeBps,
	}

	optimalInput, ok := amm.OptimalArbitrageInput(pools)
	if !ok {
		return OpportunityRecord{}, BelowThreshold{Reason: "no positive-profit closed-form input"}
	}

	// Step 4: clamp to max_position_pct of the source pool's reserve.
	maxInput := new(big.Int).Mul(reserveInA, big.NewInt(int64(d.thresholds.MaxPositionPct*1e6)))
	maxInput.Quo(maxInput, big.NewInt(1e6))
	if optimalInput.Cmp(maxInput) > 0 {
		optimalInput = maxInput
	}
	if optimalInput.Sign() <= 0 {
		return OpportunityRecord{}, BelowThreshold{Reason: "clamped input non-positive"}
	}

	// Step 5: simulate both legs at the (possibly clamped) size.
	midOutput, err := amm.AmountOut(optimalInput, reserveInA, reserveOutA, a.FeeBps)
	if err != nil {
		return OpportunityRecord{}, err
	}
	finalOutput, err := amm.AmountOut(midOutput, reserveInB, reserveOutB, b.FeeBps)
	if err != nil {
		return OpportunityRecord{}, err
	}

	return d.finishOpportunity(a, b, tokenIn, tokenOut, optimalInput, midOutput, finalOutput,
		reserveInA, reserveOutA, reserveInB, reserveOutB, nowNs)
}

// tryDirectionApprox handles any pair with at least one V3 leg: the
// closed-form optimal size doesn't apply across a concentrated-liquidity
// tick boundary, so it probes a single fixed test amount (spec §4.E:
// "fixed-test-amount approximation for cross-tick legs") sized off
// whichever pool is the source leg.
func (d *Detector) tryDirectionApprox(a, b *poolstate.PoolState, tokenIn, tokenOut common.Address, nowNs uint64) (OpportunityRecord, error) {
	testInput := probeAmount(a, tokenIn, tokenOut)
	if testInput == nil || testInput.Sign() <= 0 {
		return OpportunityRecord{}, amm.NoLiquidity{Reason: "no probe amount for source leg"}
	}

	if a.Kind == poolstate.KindV3 {
		exceeds, err := amm.PriceImpactExceedsBound(a.Liquidity, a.SqrtPriceX96, testInput, a.ID.Tokens[0] == tokenIn, d.thresholds.SlippageToleranceBps)
		if err != nil {
			return OpportunityRecord{}, err
		}
		if exceeds {
			return OpportunityRecord{}, BelowThreshold{Reason: "source leg price impact exceeds bound"}
		}
	}

	midOutput, err := swapLeg(a, tokenIn, tokenOut, testInput)
	if err != nil {
		return OpportunityRecord{}, err
	}
	finalOutput, err := swapLeg(b, tokenOut, tokenIn, midOutput)
	if err != nil {
		return OpportunityRecord{}, err
	}

	return d.finishOpportunity(a, b, tokenIn, tokenOut, testInput, midOutput, finalOutput,
		nil, nil, nil, nil, nowNs)
}

// finishOpportunity runs steps 6-9 common to both the closed-form and
// fixed-test-amount paths: USD conversion, fee/gas/slippage deduction,
// threshold checks, and record construction. reserveInA/reserveOutA/
// reserveInB/reserveOutB are used for the marginal-slippage estimate (V2
// legs); the estimate is made only when both reserveInA and reserveInB are
// non-nil, otherwise slippage is zero.
func (d *Detector) finishOpportunity(a, b *poolstate.PoolState, tokenIn, tokenOut common.Address, optimalInput, midOutput, finalOutput *big.Int, reserveInA, reserveOutA, reserveInB, reserveOutB *big.Int, nowNs uint64) (OpportunityRecord, error) {
	grossProfitToken := new(big.Int).Sub(finalOutput, optimalInput)
	if grossProfitToken.Sign() <= 0 {
		return OpportunityRecord{}, BelowThreshold{Reason: "non-positive gross profit"}
	}

	// Step 6: convert to USD.
	priceIn, ok := d.prices.USDPrice(tokenIn)
	if !ok {
		return OpportunityRecord{}, BelowThreshold{Reason: "no price for token_in"}
	}
	grossProfitUSD := bigIntToFloat(grossProfitToken) * priceIn

	// Step 7: subtract fixed fees + gas.
	notionalUSD := bigIntToFloat(optimalInput) * priceIn
	dexFeesUSD := notionalUSD * (float64(a.FeeBps)+float64(b.FeeBps)) / 10000.0
	gasCostUSD := d.gas.Average(d.thresholds.GasCostUSD)

	// Step 8: slippage estimate — marginal price change times half the
	// notional, summed across legs with V2 reserves. The approximation path
	// (any V3 leg) passes no reserves, so no slippage is estimated for it;
	// there only a V3 source leg had its impact bounded at the probe stage.
	slippageUSD := 0.0
	if reserveInA != nil && reserveInB != nil {
		slippageUSD = estimateSlippageUSD(optimalInput, reserveInA, reserveOutA, midOutput, reserveInB, reserveOutB, priceIn)
	}
	slippageBps := uint16(0)
	if notionalUSD > 0 {
		slippageBps = uint16((slippageUSD / notionalUSD) * 10000)
	}

	netProfitUSD := grossProfitUSD - dexFeesUSD - gasCostUSD - slippageUSD

	// Step 9: threshold check.
	if netProfitUSD < d.thresholds.MinProfitUSD {
		return OpportunityRecord{}, BelowThreshold{Reason: "net profit below floor"}
	}
	if uint32(slippageBps) > d.thresholds.SlippageToleranceBps {
		return OpportunityRecord{}, BelowThreshold{Reason: "slippage exceeds tolerance"}
	}

	d.nextSignal++
	spreadBps := uint16(0)
	if notionalUSD > 0 {
		spreadBps = uint16((grossProfitUSD / notionalUSD) * 10000)
	}

	return OpportunityRecord{
		StrategyID:          d.strategyID,
		SignalID:            d.nextSignal,
		SourcePoolHash:      a.ID.Hash(),
		TargetPoolHash:      b.ID.Hash(),
		TokenIn:             tokenIn,
		TokenOut:            tokenOut,
		OptimalInput:        optimalInput,
		ExpectedOutput:      finalOutput,
		ExpectedProfitUSDQ8: toQ8(grossProfitUSD),
		GasCostUSDQ8:        toQ8(gasCostUSD),
		DexFeesUSDQ8:        toQ8(dexFeesUSD),
		SlippageUSDQ8:       toQ8(slippageUSD),
		NetProfitUSDQ8:      toQ8(netProfitUSD),
		SpreadBps:           spreadBps,
		Priority:            priorityFor(netProfitUSD),
		ValidUntilUnix:      uint32(nowNs/1e9) + 30,
		TimestampNs:         nowNs,
	}, nil
}

// swapLeg dispatches a single-leg swap simulation by pool kind: exact V2
// constant-product math, or the V3 single-tick approximation.
func swapLeg(pool *poolstate.PoolState, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	switch pool.Kind {
	case poolstate.KindV2:
		reserveIn, reserveOut := reservesFor(pool, tokenIn, tokenOut)
		if reserveIn == nil || reserveOut == nil {
			return nil, amm.NoLiquidity{Reason: "missing reserve for direction"}
		}
		return amm.AmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps)
	case poolstate.KindV3:
		zeroForOne := pool.ID.Tokens[0] == tokenIn
		out, _, err := amm.SingleTickSwap(pool.Liquidity, pool.SqrtPriceX96, amountIn, zeroForOne)
		return out, err
	default:
		return nil, amm.NoLiquidity{Reason: "unsupported pool kind"}
	}
}

// probeAmount sizes the fixed test amount for the approximation path: a
// small fraction of reserves for a V2 source leg, or the liquidity-scaled
// probe amm.SingleTickSwap is calibrated for on a V3 source leg.
func probeAmount(pool *poolstate.PoolState, tokenIn, tokenOut common.Address) *big.Int {
	switch pool.Kind {
	case poolstate.KindV2:
		reserveIn, _ := reservesFor(pool, tokenIn, tokenOut)
		if reserveIn == nil {
			return nil
		}
		return new(big.Int).Quo(reserveIn, big.NewInt(1000))
	case poolstate.KindV3:
		if pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 {
			return nil
		}
		return new(big.Int).Quo(pool.Liquidity, amm.ApproxTestAmountLiquidityDivisor)
	default:
		return nil
	}
}

// reservesFor returns (reserveIn, reserveOut) for a swap from tokenIn to
// tokenOut against pool's V2 reserves, or nil if tokenIn/tokenOut don't
// match pool's canonical tokens.
func reservesFor(pool *poolstate.PoolState, tokenIn, tokenOut common.Address) (*big.Int, *big.Int) {
	switch {
	case pool.ID.Tokens[0] == tokenIn && pool.ID.Tokens[1] == tokenOut:
		return pool.Reserve0, pool.Reserve1
	case pool.ID.Tokens[1] == tokenIn && pool.ID.Tokens[0] == tokenOut:
		return pool.Reserve1, pool.Reserve0
	default:
		return nil, nil
	}
}

func estimateSlippageUSD(amountA, reserveInA, reserveOutA, amountB, reserveInB, reserveOutB *big.Int, priceIn float64) float64 {
	slipA := marginalSlippage(amountA, reserveInA, reserveOutA) * bigIntToFloat(amountA) * priceIn / 2
	slipB := marginalSlippage(amountB, reserveInB, reserveOutB) * bigIntToFloat(amountB) * priceIn / 2
	return slipA + slipB
}

// marginalSlippage estimates the fractional price impact of trading amount
// against (reserveIn, reserveOut): amount / (reserveIn + amount).
func marginalSlippage(amount, reserveIn, reserveOut *big.Int) float64 {
	if reserveIn.Sign() <= 0 {
		return 0
	}
	denom := new(big.Int).Add(reserveIn, amount)
	if denom.Sign() <= 0 {
		return 0
	}
	num := new(big.Int).Mul(amount, big.NewInt(1_000_000))
	num.Quo(num, denom)
	return float64(num.Int64()) / 1_000_000
}

func bigIntToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}

func priorityFor(netProfitUSD float64) uint16 {
	switch {
	case netProfitUSD >= 1000:
		return 3
	case netProfitUSD >= 100:
		return 2
	default:
		return 1
	}
}
