// Package priceoracle supplies the token-price data the detector needs to
// convert AMM math into USD (spec §4.E step 6: "out of scope for the
// detector to source"). It polls a REST price-feed API with
// github.com/go-resty/resty/v2, the teacher's HTTP client of choice
// (internal/exchange used resty for Polymarket's Gamma/CLOB REST surface;
// here it polls a token-price endpoint instead), rate-limited by the
// adapted token-bucket in ratelimit.go.
package priceoracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// quoteResponse is the subset of a price-feed API response this oracle
// cares about: a map from lowercased token address to USD price.
type quoteResponse map[string]struct {
	USD float64 `json:"usd"`
}

// Oracle polls a REST price feed on an interval and serves the latest
// known price for any tracked token, satisfying arb.PriceSource.
type Oracle struct {
	client  *resty.Client
	limiter *TokenBucket
	logger  *slog.Logger

	mu     sync.RWMutex
	prices map[common.Address]float64

	tokens []common.Address
}

// New constructs an Oracle polling baseURL at up to requestsPerSecond,
// tracking the given tokens.
func New(baseURL string, requestsPerSecond float64, tokens []common.Address, logger *slog.Logger) *Oracle {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	return &Oracle{
		client:  client,
		limiter: NewTokenBucket(requestsPerSecond, requestsPerSecond),
		logger:  logger.With("component", "price_oracle"),
		prices:  make(map[common.Address]float64),
		tokens:  tokens,
	}
}

// USDPrice implements arb.PriceSource.
func (o *Oracle) USDPrice(token common.Address) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[token]
	return p, ok
}

// Run polls the price feed every interval until ctx is cancelled.
func (o *Oracle) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := o.poll(ctx); err != nil {
		o.logger.Warn("initial price poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.poll(ctx); err != nil {
				o.logger.Warn("price poll failed", "error", err)
			}
		}
	}
}

func (o *Oracle) poll(ctx context.Context) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	addrs := make([]string, len(o.tokens))
	for i, t := range o.tokens {
		addrs[i] = strings.ToLower(t.Hex())
	}

	var result quoteResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParam("contract_addresses", strings.Join(addrs, ",")).
		SetQueryParam("vs_currencies", "usd").
		SetResult(&result).
		Get("/simple/token_price/ethereum")
	if err != nil {
		return fmt.Errorf("price oracle request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("price oracle request: status %d", resp.StatusCode())
	}

	o.mu.Lock()
	for addr, q := range result {
		o.prices[common.HexToAddress(addr)] = q.USD
	}
	o.mu.Unlock()

	return nil
}
