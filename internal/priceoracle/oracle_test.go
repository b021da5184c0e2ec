package priceoracle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOraclePollPopulatesPrices(t *testing.T) {
	t.Parallel()

	token := common.HexToAddress("0x1111111111111111111111111111111111111111")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"` + token.Hex() + `": {"usd": 1.23}}`))
	}))
	defer srv.Close()

	o := New(srv.URL, 10, []common.Address{token}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	price, ok := o.USDPrice(token)
	if !ok {
		t.Fatal("USDPrice: no price recorded")
	}
	if price != 1.23 {
		t.Errorf("price = %v, want 1.23", price)
	}
}

func TestUSDPriceMissingTokenReturnsFalse(t *testing.T) {
	t.Parallel()

	o := New("http://example.invalid", 1, nil, discardLogger())
	unknown := common.HexToAddress("0x9999999999999999999999999999999999999999")
	if _, ok := o.USDPrice(unknown); ok {
		t.Error("USDPrice for untracked token should be ok=false")
	}
}
