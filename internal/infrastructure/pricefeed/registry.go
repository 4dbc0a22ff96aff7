package pricefeed

import (
	"errors"
	"fmt"
	"sort"

	"arbwatch/internal/application/port"
	"arbwatch/internal/infrastructure/exchange/binance"
	"arbwatch/internal/infrastructure/exchange/bitfinex"
	"arbwatch/internal/infrastructure/exchange/bitget"
	"arbwatch/internal/infrastructure/exchange/bitmex"
	"arbwatch/internal/infrastructure/exchange/bybit"
	"arbwatch/internal/infrastructure/exchange/mexc"
	"arbwatch/internal/infrastructure/exchange/okx"
)

var ErrUnknownMarket = errors.New("pricefeed: unknown market")

// Factory builds a feed for one venue from its websocket url.
type Factory func(wsURL string) port.BookFeed

// registry is the closed set of supported markets.
var registry = map[string]Factory{
	binance.Name:  func(u string) port.BookFeed { return binance.NewBookTickerFeed(u) },
	bybit.Name:    func(u string) port.BookFeed { return bybit.NewOrderbookFeed(u) },
	okx.Name:      func(u string) port.BookFeed { return okx.NewBBOFeed(u) },
	bitget.Name:   func(u string) port.BookFeed { return bitget.NewBooksFeed(u) },
	mexc.Name:     func(u string) port.BookFeed { return mexc.NewBookTickerFeed(u) },
	bitfinex.Name: func(u string) port.BookFeed { return bitfinex.NewBookFeed(u) },
	bitmex.Name:   func(u string) port.BookFeed { return bitmex.NewQuoteFeed(u) },
}

// Get 获取市场对应的 factory
func Get(market string) (Factory, bool) {
	f, ok := registry[market]
	return f, ok
}

// Resolve returns the feed for market, failing on ids outside the set.
func Resolve(market, wsURL string) (port.BookFeed, error) {
	f, ok := Get(market)
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %v)", ErrUnknownMarket, market, Markets())
	}
	return f(wsURL), nil
}

// Markets lists the supported market ids, sorted.
func Markets() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
