package arb

import "sync"

// GasPriceTracker maintains a rolling average gas price in USD, feeding the
// detector's gas_cost_usd baseline (spec §4.E: "gas_cost_usd (baseline,
// caller-updatable)"). Supplemented from original_source's
// arbitrage_calculator.rs GasPriceTracker, which names the mechanism the
// distilled spec leaves unspecified.
type GasPriceTracker struct {
	mu      sync.Mutex
	window  []float64
	maxLen  int
	sum     float64
}

// NewGasPriceTracker creates a tracker averaging over the last windowSize
// observations.
func NewGasPriceTracker(windowSize int) *GasPriceTracker {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &GasPriceTracker{maxLen: windowSize}
}

// Observe records a new gas cost sample (USD per swap leg, at the gas price
// and gas limit prevailing when observed).
func (t *GasPriceTracker) Observe(gasCostUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window = append(t.window, gasCostUSD)
	t.sum += gasCostUSD
	if len(t.window) > t.maxLen {
		t.sum -= t.window[0]
		t.window = t.window[1:]
	}
}

// Average returns the rolling mean gas cost in USD, or fallback if no
// samples have been observed yet.
func (t *GasPriceTracker) Average(fallback float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == 0 {
		return fallback
	}
	return t.sum / float64(len(t.window))
}
