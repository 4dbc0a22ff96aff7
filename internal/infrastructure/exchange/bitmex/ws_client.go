package bitmex

import (
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

const Name = "bitmex"

// bitmex 现货: BTC/USDT -> XBT_USDT
var symbols = exchange.NewSymbolConverter("_", false).WithAlias("BTC", "XBT")

// QuoteFeed streams the realtime quote table (best bid/ask).
// Sizes are passed through as the venue reports them.
type QuoteFeed struct {
	wsURL string // e.g. wss://ws.bitmex.com/realtime
}

func NewQuoteFeed(wsURL string) *QuoteFeed {
	return &QuoteFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *QuoteFeed) Name() string { return Name }

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type quoteMsg struct {
	Table  string      `json:"table"`
	Action string      `json:"action"`
	Data   []quoteData `json:"data"`

	Success   *bool  `json:"success"`
	Subscribe string `json:"subscribe"`
	Error     string `json:"error"`
	Info      string `json:"info"`
}

type quoteData struct {
	Timestamp string   `json:"timestamp"`
	Symbol    string   `json:"symbol"`
	BidSize   *float64 `json:"bidSize"`
	BidPrice  *float64 `json:"bidPrice"`
	AskPrice  *float64 `json:"askPrice"`
	AskSize   *float64 `json:"askSize"`
}

func (f *QuoteFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("bitmex ws_url empty")
	}
	sub, err := json.Marshal(subReq{Op: "subscribe", Args: []string{"quote:" + symbols.Symbol(pair)}})
	if err != nil {
		return nil, err
	}

	s := &exchange.Stream{
		Name:         Name,
		URL:          f.wsURL,
		Subscribe:    sub,
		Ping:         []byte("ping"),
		PingInterval: 20 * time.Second,
		Decode:       decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	if string(b) == "pong" {
		return domain.TopOfBook{}, false, nil
	}

	var msg quoteMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bitmex: decode quote: %w", err)
	}
	if msg.Error != "" {
		return domain.TopOfBook{}, false, fmt.Errorf("bitmex: %s", msg.Error)
	}
	if msg.Table != "quote" || len(msg.Data) == 0 {
		return domain.TopOfBook{}, false, nil
	}

	// 同一帧多条报价时取最新一条
	d := msg.Data[len(msg.Data)-1]
	var book domain.TopOfBook
	if d.BidPrice != nil {
		book.Bid, book.HasBid = domain.Level{Price: *d.BidPrice, Qty: deref(d.BidSize)}, true
	}
	if d.AskPrice != nil {
		book.Ask, book.HasAsk = domain.Level{Price: *d.AskPrice, Qty: deref(d.AskSize)}, true
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, d.Timestamp); err == nil {
		book.Ts = ts.UnixMilli()
	}
	return book, true, nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
