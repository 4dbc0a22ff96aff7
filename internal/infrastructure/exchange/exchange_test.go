package exchange

import (
	"testing"

	"arbwatch/internal/domain"
)

func TestSymbolConverter(t *testing.T) {
	p := domain.Pair{Base: "btc", Quote: "usdt"}
	if got := JoinedSymbols.Symbol(p); got != "BTCUSDT" {
		t.Errorf("joined want BTCUSDT got %s", got)
	}
	if got := DashedSymbols.Symbol(p); got != "BTC-USDT" {
		t.Errorf("dashed want BTC-USDT got %s", got)
	}
	if got := NewSymbolConverter("", true).Symbol(p); got != "btcusdt" {
		t.Errorf("lower want btcusdt got %s", got)
	}
	if !DashedSymbols.Matches("btc-usdt", p) {
		t.Error("Matches should ignore case")
	}
}

func TestSymbolConverterAlias(t *testing.T) {
	p := domain.Pair{Base: "BTC", Quote: "USDT"}
	bitmex := NewSymbolConverter("_", false).WithAlias("BTC", "XBT")
	if got := bitmex.Symbol(p); got != "XBT_USDT" {
		t.Errorf("unexpected aliased symbol %s", got)
	}
	if got := JoinedSymbols.Symbol(p); got != "BTCUSDT" {
		t.Errorf("alias must not leak into other converters: %s", got)
	}
	if got := bitmex.Asset("eth"); got != "ETH" {
		t.Errorf("unaliased asset want ETH got %s", got)
	}
}

func TestBookFromLevels(t *testing.T) {
	b, err := BookFromLevels([][]string{{"100", "1"}}, nil, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !b.HasBid || b.HasAsk || b.Bid.Price != 100 || b.Ts != 7 {
		t.Errorf("unexpected book %+v", b)
	}

	if _, err := BookFromLevels([][]string{{"100"}}, nil, 0); err == nil {
		t.Error("short level should fail")
	}
	if _, err := BookFromLevels(nil, [][]string{{"1", "x"}}, 0); err == nil {
		t.Error("bad qty should fail")
	}
}

func TestJoinURL(t *testing.T) {
	cases := map[string]string{
		"wss://stream.binance.com:9443/ws":  "wss://stream.binance.com:9443/ws/btcusdt@bookTicker",
		"wss://stream.binance.com:9443/ws/": "wss://stream.binance.com:9443/ws/btcusdt@bookTicker",
	}
	for base, want := range cases {
		got, err := JoinURL(base, "btcusdt@bookTicker")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("JoinURL(%s) want %s got %s", base, want, got)
		}
	}
	if _, err := JoinURL(" ", "x"); err == nil {
		t.Error("empty base should fail")
	}
}
