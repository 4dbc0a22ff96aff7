package bitfinex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
	"arbwatch/internal/infrastructure/exchange"
)

const Name = "bitfinex"

// bitfinex 把 USDT 记作 UST
var symbols = exchange.NewSymbolConverter("", false).WithAlias("USDT", "UST")

// BookFeed streams the v2 public book channel at depth 1 (P0 precision).
type BookFeed struct {
	wsURL string // e.g. wss://api-pub.bitfinex.com/ws/2
}

func NewBookFeed(wsURL string) *BookFeed {
	return &BookFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *BookFeed) Name() string { return Name }

type subReq struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Prec    string `json:"prec"`
	Len     string `json:"len"`
}

type eventMsg struct {
	Event string `json:"event"`
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
}

// Symbol returns the trading symbol, e.g. tBTCUST or tDOGE:UST.
func Symbol(pair domain.Pair) string {
	base, quote := symbols.Asset(pair.Base), symbols.Asset(pair.Quote)
	if len(base) > 3 || len(quote) > 3 {
		return "t" + base + ":" + quote
	}
	return "t" + base + quote
}

func (f *BookFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("bitfinex ws_url empty")
	}
	sub, err := json.Marshal(subReq{
		Event:   "subscribe",
		Channel: "book",
		Symbol:  Symbol(pair),
		Prec:    "P0",
		Len:     "1",
	})
	if err != nil {
		return nil, err
	}

	s := &exchange.Stream{
		Name:         Name,
		URL:          f.wsURL,
		Subscribe:    sub,
		Ping:         []byte(`{"event":"ping","cid":1}`),
		PingInterval: 20 * time.Second,
		Decode:       decode,
	}
	return s.Start(ctx)
}

// decode handles [chanId, [[price, count, amount], ...]] snapshots and
// [chanId, [price, count, amount]] updates. amount > 0 is a bid, < 0 an ask.
func decode(b []byte) (domain.TopOfBook, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var ev eventMsg
		if err := json.Unmarshal(b, &ev); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("bitfinex: decode event: %w", err)
		}
		if ev.Event == "error" {
			return domain.TopOfBook{}, false, fmt.Errorf("bitfinex: error %d: %s", ev.Code, ev.Msg)
		}
		return domain.TopOfBook{}, false, nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(b, &frame); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bitfinex: decode book: %w", err)
	}
	if len(frame) < 2 {
		return domain.TopOfBook{}, false, nil
	}
	payload := bytes.TrimSpace(frame[1])
	// "hb" heartbeat / "cs" checksum
	if len(payload) == 0 || payload[0] != '[' || bytes.Equal(payload, []byte("[]")) {
		return domain.TopOfBook{}, false, nil
	}

	var entries [][]float64
	if bytes.HasPrefix(bytes.TrimSpace(payload[1:]), []byte("[")) {
		if err := json.Unmarshal(payload, &entries); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("bitfinex: decode snapshot: %w", err)
		}
	} else {
		var entry []float64
		if err := json.Unmarshal(payload, &entry); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("bitfinex: decode update: %w", err)
		}
		entries = [][]float64{entry}
	}

	var book domain.TopOfBook
	for _, e := range entries {
		if len(e) < 3 {
			return domain.TopOfBook{}, false, errors.New("bitfinex: book entry has fewer than 3 fields")
		}
		price, count, amount := e[0], e[1], e[2]
		// count == 0 removes the level; the next update brings the new best
		if count == 0 {
			continue
		}
		switch {
		case amount > 0 && !book.HasBid:
			book.Bid, book.HasBid = domain.Level{Price: price, Qty: amount}, true
		case amount < 0 && !book.HasAsk:
			book.Ask, book.HasAsk = domain.Level{Price: price, Qty: -amount}, true
		}
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	return book, true, nil
}
