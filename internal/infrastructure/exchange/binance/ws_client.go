package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/infrastructure/exchange"
)

const Name = "binance"

var symbols = exchange.NewSymbolConverter("", true)

// BookTickerFeed streams best bid/ask from the spot <symbol>@bookTicker stream.
type BookTickerFeed struct {
	wsURL string // e.g. wss://stream.binance.com:9443/ws
}

func NewBookTickerFeed(wsURL string) *BookTickerFeed {
	return &BookTickerFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *BookTickerFeed) Name() string { return Name }

type bookTickerMsg struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (f *BookTickerFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("binance ws_url empty")
	}
	wsURL, err := exchange.JoinURL(f.wsURL, symbols.Symbol(pair)+"@bookTicker")
	if err != nil {
		return nil, fmt.Errorf("binance ws url: %w", err)
	}

	s := &exchange.Stream{
		Name:   Name,
		URL:    wsURL,
		Decode: decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	var msg bookTickerMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("binance: decode bookTicker: %w", err)
	}
	// subscription replies ({"result":null,"id":1}) carry no symbol
	if msg.Symbol == "" {
		return domain.TopOfBook{}, false, nil
	}

	bid, err := exchange.ParseLevel(msg.BidPrice, msg.BidQty)
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("binance: bid: %w", err)
	}
	ask, err := exchange.ParseLevel(msg.AskPrice, msg.AskQty)
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("binance: ask: %w", err)
	}
	// spot bookTicker has no event time; the stream stamps receive time
	return domain.NewTopOfBook(bid, ask, 0), true, nil
}
