package amm

import (
	"math/big"
	"testing"
)

func TestAmountOutBasic(t *testing.T) {
	t.Parallel()

	out, err := AmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000), 30)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	if out.Sign() <= 0 || out.Cmp(big.NewInt(1000)) >= 0 {
		t.Errorf("out = %s, want 0 < out < 1000 (fee + slippage)", out)
	}
}

func TestAmountOutZeroReserveIsNoLiquidity(t *testing.T) {
	t.Parallel()

	_, err := AmountOut(big.NewInt(100), big.NewInt(0), big.NewInt(1000), 30)
	if _, ok := err.(NoLiquidity); !ok {
		t.Fatalf("err = %v (%T), want NoLiquidity", err, err)
	}
}

// TestAmountInRoundsUpAndIsSufficient is spec §8.1's invariant: AmountIn's
// result, fed back through AmountOut, must yield at least the requested
// output — the rounding-up guarantees sufficiency even though it costs the
// caller a fraction more than the unrounded inverse would.
func TestAmountInRoundsUpAndIsSufficient(t *testing.T) {
	t.Parallel()

	reserveIn := big.NewInt(1_000_000)
	reserveOut := big.NewInt(2_000_000)
	targetOut := big.NewInt(12345)
	feeBps := uint32(30)

	amountIn, err := AmountIn(targetOut, reserveIn, reserveOut, feeBps)
	if err != nil {
		t.Fatalf("AmountIn: %v", err)
	}

	gotOut, err := AmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		t.Fatalf("AmountOut: %v", err)
	}
	if gotOut.Cmp(targetOut) < 0 {
		t.Fatalf("AmountOut(AmountIn(target)) = %s, want >= target %s", gotOut, targetOut)
	}

	// One unit less of input must not suffice — otherwise AmountIn rounded
	// up more than necessary.
	oneLess := new(big.Int).Sub(amountIn, big.NewInt(1))
	lessOut, err := AmountOut(oneLess, reserveIn, reserveOut, feeBps)
	if err != nil {
		t.Fatalf("AmountOut(amountIn-1): %v", err)
	}
	if lessOut.Cmp(targetOut) >= 0 {
		t.Errorf("AmountOut(amountIn-1) = %s, still >= target %s; AmountIn over-rounded", lessOut, targetOut)
	}
}

func TestISqrtExactSquares(t *testing.T) {
	t.Parallel()

	for _, n := range []int64{0, 1, 4, 9, 16, 10000, 1_000_000} {
		root := ISqrt(big.NewInt(n))
		want := new(big.Int)
		want.Sqrt(big.NewInt(n))
		if root.Cmp(want) != 0 {
			t.Errorf("ISqrt(%d) = %s, want %s", n, root, want)
		}
	}
}

func TestISqrtNonSquareFloors(t *testing.T) {
	t.Parallel()

	for _, n := range []int64{2, 3, 10, 99, 123456789} {
		root := ISqrt(big.NewInt(n))
		sq := new(big.Int).Mul(root, root)
		next := new(big.Int).Mul(new(big.Int).Add(root, big.NewInt(1)), new(big.Int).Add(root, big.NewInt(1)))
		if sq.Cmp(big.NewInt(n)) > 0 {
			t.Errorf("ISqrt(%d) = %s, square exceeds n", n, root)
		}
		if next.Cmp(big.NewInt(n)) <= 0 {
			t.Errorf("ISqrt(%d) = %s, not the floor (next square still <= n)", n, root)
		}
	}
}

// TestOptimalArbitrageInputProfitable is spec §8.3 scenario #3: two V2
// pools for the same pair with an evident price discrepancy should yield a
// positive optimal input whose round trip strictly profits.
func TestOptimalArbitrageInputProfitable(t *testing.T) {
	t.Parallel()

	pools := TwoLegPools{
		ReserveInA:  big.NewInt(1000),
		ReserveOutA: big.NewInt(2_000_000),
		FeeBpsA:     30,
		ReserveInB:  big.NewInt(1_050), // target pool oriented tokenOut->tokenIn: x2=1_050 is the tokenOut-side reserve
		ReserveOutB: big.NewInt(1_900_000),
		FeeBpsB:     30,
	}

	a, ok := OptimalArbitrageInput(pools)
	if !ok {
		t.Fatal("OptimalArbitrageInput: no opportunity found, want positive input")
	}
	if a.Sign() <= 0 {
		t.Fatalf("optimal input = %s, want > 0", a)
	}

	out1, err := AmountOut(a, pools.ReserveInA, pools.ReserveOutA, pools.FeeBpsA)
	if err != nil {
		t.Fatalf("AmountOut leg A: %v", err)
	}
	out2, err := AmountOut(out1, pools.ReserveInB, pools.ReserveOutB, pools.FeeBpsB)
	if err != nil {
		t.Fatalf("AmountOut leg B: %v", err)
	}
	if out2.Cmp(a) <= 0 {
		t.Errorf("round trip output %s does not exceed input %s", out2, a)
	}
}

// TestOptimalArbitrageInputHighFeeKillsOpportunity is spec §8.3 scenario #4: the
// same pools at a 10% fee each should yield no viable opportunity.
func TestOptimalArbitrageInputHighFeeKillsOpportunity(t *testing.T) {
	t.Parallel()

	pools := TwoLegPools{
		ReserveInA:  big.NewInt(1000),
		ReserveOutA: big.NewInt(2_000_000),
		FeeBpsA:     1000,
		ReserveInB:  big.NewInt(1_050),
		ReserveOutB: big.NewInt(1_900_000),
		FeeBpsB:     1000,
	}

	a, ok := OptimalArbitrageInput(pools)
	if ok {
		t.Logf("optimal input = %s despite 10%% fees; verifying round trip is not actually profitable", a)
		out1, err := AmountOut(a, pools.ReserveInA, pools.ReserveOutA, pools.FeeBpsA)
		if err != nil {
			t.Fatalf("AmountOut leg A: %v", err)
		}
		out2, err := AmountOut(out1, pools.ReserveInB, pools.ReserveOutB, pools.FeeBpsB)
		if err != nil {
			t.Fatalf("AmountOut leg B: %v", err)
		}
		if out2.Cmp(a) > 0 {
			t.Errorf("round trip output %s exceeds input %s at 10%% fees; expected no profitable opportunity", out2, a)
		}
	}
}
