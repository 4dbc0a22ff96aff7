package exchange

import (
	"strings"

	"arbwatch/internal/domain"
)

// SymbolConverter 交易对与交易所符号互转
// 例: BTC/USDT -> BTCUSDT (binance, bybit, bitget, mexc), BTC-USDT (okx), XBT_USDT (bitmex)
type SymbolConverter struct {
	sep   string
	lower bool
	alias map[string]string
}

func NewSymbolConverter(sep string, lower bool) SymbolConverter {
	return SymbolConverter{sep: sep, lower: lower}
}

var (
	JoinedSymbols = NewSymbolConverter("", false)
	DashedSymbols = NewSymbolConverter("-", false)
)

// WithAlias returns a converter that renames asset from to the venue's code to.
func (c SymbolConverter) WithAlias(from, to string) SymbolConverter {
	alias := make(map[string]string, len(c.alias)+1)
	for k, v := range c.alias {
		alias[k] = v
	}
	alias[strings.ToUpper(from)] = strings.ToUpper(to)
	c.alias = alias
	return c
}

// Asset returns the venue code for one asset.
func (c SymbolConverter) Asset(a string) string {
	a = strings.ToUpper(a)
	if v, ok := c.alias[a]; ok {
		return v
	}
	return a
}

// Symbol formats p the way the venue expects it.
func (c SymbolConverter) Symbol(p domain.Pair) string {
	s := c.Asset(p.Base) + c.sep + c.Asset(p.Quote)
	if c.lower {
		return strings.ToLower(s)
	}
	return s
}

// Matches reports whether a venue symbol refers to p.
func (c SymbolConverter) Matches(symbol string, p domain.Pair) bool {
	return strings.EqualFold(strings.TrimSpace(symbol), c.Symbol(p))
}
