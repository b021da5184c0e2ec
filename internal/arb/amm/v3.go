package amm

import "math/big"

// Q96 is the fixed-point scale for sqrt_price_x96 (Uniswap V3 convention).
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// SingleTickSwap computes the output amount and resulting sqrt price for a
// swap that stays within a single tick — closed form given liquidity L and
// the current sqrt_price_x96 (spec §4.E). zeroForOne selects the swap
// direction: true means token0 is the input.
//
// amountOut = liquidity * (sqrtPriceX96 - sqrtPriceNextX96) / Q96   (zeroForOne)
// sqrtPriceNextX96 = Q96*liquidity / (Q96*liquidity/sqrtPriceX96 + amountIn)  (zeroForOne)
func SingleTickSwap(liquidity, sqrtPriceX96, amountIn *big.Int, zeroForOne bool) (amountOut, sqrtPriceNextX96 *big.Int, err error) {
	if liquidity.Sign() <= 0 {
		return nil, nil, NoLiquidity{Reason: "zero liquidity"}
	}
	if sqrtPriceX96.Sign() <= 0 {
		return nil, nil, Overflow{Reason: "non-positive sqrt price"}
	}
	if amountIn.Sign() < 0 {
		return nil, nil, Overflow{Reason: "negative amountIn"}
	}

	if zeroForOne {
		// liquidity / sqrtPrice, scaled
		lDivP := new(big.Int).Mul(liquidity, Q96)
		lDivP.Quo(lDivP, sqrtPriceX96)
		denom := new(big.Int).Add(lDivP, amountIn)
		if denom.Sign() <= 0 {
			return nil, nil, Overflow{Reason: "zero denominator"}
		}
		next := new(big.Int).Mul(Q96, liquidity)
		next.Quo(next, denom)

		diff := new(big.Int).Sub(sqrtPriceX96, next)
		if diff.Sign() < 0 {
			diff.SetInt64(0)
		}
		out := new(big.Int).Mul(liquidity, diff)
		out.Quo(out, Q96)
		return out, next, nil
	}

	// One-for-zero: price moves up. sqrtPriceNext = sqrtPrice + amountIn*Q96/liquidity.
	delta := new(big.Int).Mul(amountIn, Q96)
	delta.Quo(delta, liquidity)
	next := new(big.Int).Add(sqrtPriceX96, delta)

	// amountOut = liquidity * (next - sqrtPrice) / (sqrtPrice * next / Q96)
	priceDiff := new(big.Int).Sub(next, sqrtPriceX96)
	numerator := new(big.Int).Mul(liquidity, priceDiff)
	numerator.Mul(numerator, Q96)
	denominator := new(big.Int).Mul(sqrtPriceX96, next)
	if denominator.Sign() <= 0 {
		return nil, nil, Overflow{Reason: "zero denominator"}
	}
	out := new(big.Int).Quo(numerator, denominator)
	return out, next, nil
}

// ApproxTestAmountLiquidityDivisor sets the fixed small probe amount used to approximate a V3
// leg's marginal price for detector purposes (spec §4.E: "the detector
// approximates V3 legs by a fixed small test amount"). Expressed as a
// fraction of liquidity so it scales with pool depth rather than being a
// fixed token count, avoiding a probe that's oversized for thin pools.
var ApproxTestAmountLiquidityDivisor = big.NewInt(1_000_000)

// PriceImpactExceedsBound estimates price impact for a V3 leg via
// SingleTickSwap at the fixed test amount, scaled linearly to
// notionalAmount, and reports whether it exceeds toleranceBps. This is the
// "rejects opportunities whose price-impact estimate exceeds a bound" check
// named in spec §4.E.
func PriceImpactExceedsBound(liquidity, sqrtPriceX96, notionalAmount *big.Int, zeroForOne bool, toleranceBps uint32) (bool, error) {
	probe := new(big.Int).Quo(liquidity, ApproxTestAmountLiquidityDivisor)
	if probe.Sign() <= 0 {
		probe = big.NewInt(1)
	}

	_, nextPrice, err := SingleTickSwap(liquidity, sqrtPriceX96, probe, zeroForOne)
	if err != nil {
		return false, err
	}

	diff := new(big.Int).Sub(sqrtPriceX96, nextPrice)
	diff.Abs(diff)

	// impactBps = diff * FeeDenom * notional / (sqrtPriceX96 * probe): the
	// probe's relative price move extrapolated linearly to the actual trade
	// size. All multiplications happen before the single division so a
	// sub-basis-point probe impact is not truncated to zero first.
	impactBps := new(big.Int).Mul(diff, big.NewInt(FeeDenom))
	divisor := new(big.Int).Set(sqrtPriceX96)
	if probe.Sign() > 0 && notionalAmount.Sign() > 0 {
		impactBps.Mul(impactBps, notionalAmount)
		divisor.Mul(divisor, probe)
	}
	impactBps.Quo(impactBps, divisor)

	return impactBps.Cmp(big.NewInt(int64(toleranceBps))) > 0, nil
}
