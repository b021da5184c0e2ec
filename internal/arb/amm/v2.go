// Package amm implements the exact-integer AMM math the detector needs
// (spec §4.E): V2 constant-product swap simulation and optimal-size
// derivation, and a V3 single-tick approximation. All arithmetic is done
// in widened *big.Int to avoid the overflow a native 128-bit type would
// risk on chained multiplications of 256-bit on-chain reserves.
package amm

import "math/big"

// FeeDenom is the basis-point denominator used throughout: a fee of f bps
// means the pool keeps f/FeeDenom of the input.
const FeeDenom = 10000

// NoLiquidity is returned when a pool's reserves are zero on the relevant side.
type NoLiquidity struct{ Reason string }

func (e NoLiquidity) Error() string { return "amm: no liquidity: " + e.Reason }

// Overflow is returned when widened-integer arithmetic would still
// saturate (in practice: a negative or otherwise malformed input).
type Overflow struct{ Reason string }

func (e Overflow) Error() string { return "amm: overflow: " + e.Reason }

// AmountOut computes the exact V2 output amount for an exact input,
// per spec §4.E:
//
//	amount_out = ((FeeDenom - feeBps) * amountIn * reserveOut) /
//	             (FeeDenom * reserveIn + (FeeDenom - feeBps) * amountIn)
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, NoLiquidity{Reason: "zero reserve"}
	}
	if amountIn.Sign() < 0 {
		return nil, Overflow{Reason: "negative amountIn"}
	}
	if amountIn.Sign() == 0 {
		return big.NewInt(0), nil
	}

	gamma := big.NewInt(int64(FeeDenom - feeBps))
	numerator := new(big.Int).Mul(gamma, amountIn)
	numerator.Mul(numerator, reserveOut)

	denominator := new(big.Int).Mul(big.NewInt(FeeDenom), reserveIn)
	scaledIn := new(big.Int).Mul(gamma, amountIn)
	denominator.Add(denominator, scaledIn)

	if denominator.Sign() <= 0 {
		return nil, Overflow{Reason: "zero denominator"}
	}
	return new(big.Int).Quo(numerator, denominator), nil
}

// AmountIn computes the exact V2 input required to obtain exactly
// amountOut, rounding up so the caller never receives less than requested:
// one is added to the truncated quotient whenever the division leaves a
// remainder, so the result is the smallest sufficient input.
func AmountIn(amountOut, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, NoLiquidity{Reason: "zero reserve"}
	}
	if amountOut.Sign() < 0 {
		return nil, Overflow{Reason: "negative amountOut"}
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, NoLiquidity{Reason: "amountOut exceeds reserveOut"}
	}

	gamma := big.NewInt(int64(FeeDenom - feeBps))

	numerator := new(big.Int).Mul(big.NewInt(FeeDenom), reserveIn)
	numerator.Mul(numerator, amountOut)

	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, gamma)
	if denominator.Sign() <= 0 {
		return nil, Overflow{Reason: "zero denominator"}
	}

	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

// ISqrt returns floor(sqrt(n)) for n >= 0, via integer Newton iteration
// (spec §4.E: "A square-root is required; use an integer Newton iteration
// producing the floor of the true square root").
func ISqrt(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return big.NewInt(0)
	}
	if n.Cmp(big.NewInt(4)) < 0 {
		return big.NewInt(1)
	}

	x := new(big.Int).Set(n)
	// Initial guess: 2^(floor(bitlen/2)+1) is always >= the true root.
	guess := new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()/2+1))

	for {
		// next = (guess + n/guess) / 2
		quotient := new(big.Int).Quo(x, guess)
		next := new(big.Int).Add(guess, quotient)
		next.Rsh(next, 1)
		if next.Cmp(guess) >= 0 {
			break
		}
		guess = next
	}

	// Newton iteration for integer sqrt converges to floor(sqrt(n)) or
	// floor(sqrt(n))+1; correct the off-by-one directly.
	for {
		sq := new(big.Int).Mul(guess, guess)
		if sq.Cmp(n) > 0 {
			guess.Sub(guess, big.NewInt(1))
			continue
		}
		break
	}
	return guess
}

// TwoLegPools describes the two V2 pools of a candidate arbitrage: the
// source pool's reserves in (tokenIn, tokenOut) order, and the target
// pool's reserves in (tokenOut, tokenIn) order — i.e. the leg that sells
// tokenOut back for tokenIn, closing the loop.
type TwoLegPools struct {
	ReserveInA, ReserveOutA *big.Int // source pool: tokenIn -> tokenOut
	FeeBpsA                 uint32
	ReserveInB, ReserveOutB *big.Int // target pool: tokenOut -> tokenIn
	FeeBpsB                 uint32
}

// OptimalArbitrageInput computes the profit-maximizing input amount for a
// two-leg V2 arbitrage, closed form from setting d(profit)/da = 0 (spec
// §4.E). Returns (amount, true) if a positive-profit input exists, or
// (nil, false) if the closed form yields a non-positive amount (no
// opportunity).
//
// Derivation: with gamma1 = (FeeDenom-feeA)/FeeDenom, gamma2 =
// (FeeDenom-feeB)/FeeDenom, x1/y1 the source pool's reserves and x2/y2 the
// target pool's reserves (already oriented tokenOut->tokenIn), the
// round-trip output as a function of effective input u = gamma1*a reduces
// to out(u) = N*u/(C+k*u) with N = gamma2*y1*y2, C = x1*x2, k =
// x2 + gamma2*y1. Setting d(profit)/du = 0 where profit = out(u) - u/gamma1
// gives u* = (sqrt(N*C*gamma1) - C) / k, hence a* = u*/gamma1 =
// (sqrt(gamma1*gamma2*x1*y1*x2*y2) - x1*x2) / (gamma1*k). Expressed back in
// integer fee numerators g1 = FeeDenom-feeA, g2 = FeeDenom-feeB:
//
//	a* = FeeDenom*(ISqrt(g1*g2*x1*y1*x2*y2) - FeeDenom*x1*x2) /
//	     (g1*x2*FeeDenom + g1*g2*y1)
func OptimalArbitrageInput(p TwoLegPools) (*big.Int, bool) {
	if p.ReserveInA.Sign() <= 0 || p.ReserveOutA.Sign() <= 0 ||
		p.ReserveInB.Sign() <= 0 || p.ReserveOutB.Sign() <= 0 {
		return nil, false
	}

	g1 := big.NewInt(int64(FeeDenom - p.FeeBpsA))
	g2 := big.NewInt(int64(FeeDenom - p.FeeBpsB))
	x1, y1 := p.ReserveInA, p.ReserveOutA
	x2, y2 := p.ReserveInB, p.ReserveOutB
	denom := big.NewInt(FeeDenom)

	// product = g1 * g2 * x1 * y1 * x2 * y2
	product := new(big.Int).Mul(g1, g2)
	product.Mul(product, x1)
	product.Mul(product, y1)
	product.Mul(product, x2)
	product.Mul(product, y2)

	sqrtTerm := ISqrt(product)

	c := new(big.Int).Mul(x1, x2)
	numerator := new(big.Int).Sub(sqrtTerm, new(big.Int).Mul(denom, c))

	if numerator.Sign() <= 0 {
		return nil, false
	}
	numerator.Mul(numerator, denom)

	denominator := new(big.Int).Mul(g1, x2)
	denominator.Mul(denominator, denom)
	g1g2y1 := new(big.Int).Mul(g1, g2)
	g1g2y1.Mul(g1g2y1, y1)
	denominator.Add(denominator, g1g2y1)

	if denominator.Sign() <= 0 {
		return nil, false
	}

	a := new(big.Int).Quo(numerator, denominator)
	if a.Sign() <= 0 {
		return nil, false
	}
	return a, true
}
