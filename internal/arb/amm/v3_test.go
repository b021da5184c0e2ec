package amm

import (
	"math/big"
	"testing"
)

func TestSingleTickSwapZeroForOneDecreasesPrice(t *testing.T) {
	t.Parallel()

	liquidity := big.NewInt(1_000_000_000)
	sqrtPrice := new(big.Int).Set(Q96) // price = 1.0
	amountIn := big.NewInt(1_000_000)

	out, next, err := SingleTickSwap(liquidity, sqrtPrice, amountIn, true)
	if err != nil {
		t.Fatalf("SingleTickSwap: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("expected positive output, got %v", out)
	}
	if next.Cmp(sqrtPrice) >= 0 {
		t.Errorf("zeroForOne swap should decrease sqrt price: next=%v, start=%v", next, sqrtPrice)
	}
}

func TestSingleTickSwapOneForZeroIncreasesPrice(t *testing.T) {
	t.Parallel()

	liquidity := big.NewInt(1_000_000_000)
	sqrtPrice := new(big.Int).Set(Q96)
	amountIn := big.NewInt(1_000_000)

	out, next, err := SingleTickSwap(liquidity, sqrtPrice, amountIn, false)
	if err != nil {
		t.Fatalf("SingleTickSwap: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("expected positive output, got %v", out)
	}
	if next.Cmp(sqrtPrice) <= 0 {
		t.Errorf("oneForZero swap should increase sqrt price: next=%v, start=%v", next, sqrtPrice)
	}
}

func TestSingleTickSwapRejectsZeroLiquidity(t *testing.T) {
	t.Parallel()
	_, _, err := SingleTickSwap(big.NewInt(0), Q96, big.NewInt(100), true)
	if _, ok := err.(NoLiquidity); !ok {
		t.Errorf("expected NoLiquidity, got %v", err)
	}
}

func TestPriceImpactExceedsBoundDetectsLargeNotional(t *testing.T) {
	t.Parallel()

	liquidity := big.NewInt(1_000_000_000)
	sqrtPrice := new(big.Int).Set(Q96)

	small := big.NewInt(1_000)
	exceedsSmall, err := PriceImpactExceedsBound(liquidity, sqrtPrice, small, true, 50)
	if err != nil {
		t.Fatalf("PriceImpactExceedsBound: %v", err)
	}
	if exceedsSmall {
		t.Error("small notional should not exceed a 50bps bound")
	}

	large := new(big.Int).Mul(liquidity, big.NewInt(10))
	exceedsLarge, err := PriceImpactExceedsBound(liquidity, sqrtPrice, large, true, 50)
	if err != nil {
		t.Fatalf("PriceImpactExceedsBound: %v", err)
	}
	if !exceedsLarge {
		t.Error("notional many times liquidity should exceed a 50bps bound")
	}
}
