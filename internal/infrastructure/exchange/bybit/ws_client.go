package bybit

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

const Name = "bybit"

// OrderbookFeed streams the v5 spot orderbook.1 topic (best level only).
type OrderbookFeed struct {
	wsURL string // e.g. wss://stream.bybit.com/v5/public/spot
}

func NewOrderbookFeed(wsURL string) *OrderbookFeed {
	return &OrderbookFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *OrderbookFeed) Name() string { return Name }

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type orderbookMsg struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`

	// ack / pong frames
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

func (f *OrderbookFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("bybit ws_url empty")
	}
	sub, err := json.Marshal(subReq{
		Op:   "subscribe",
		Args: []string{"orderbook.1." + exchange.JoinedSymbols.Symbol(pair)},
	})
	if err != nil {
		return nil, err
	}

	s := &exchange.Stream{
		Name:         Name,
		URL:          f.wsURL,
		Subscribe:    sub,
		Ping:         []byte(`{"op":"ping"}`),
		PingInterval: 20 * time.Second,
		Decode:       decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	var msg orderbookMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bybit: decode orderbook: %w", err)
	}
	if msg.Topic == "" {
		if msg.Success != nil && !*msg.Success {
			return domain.TopOfBook{}, false, fmt.Errorf("bybit: %s failed: %s", msg.Op, msg.RetMsg)
		}
		return domain.TopOfBook{}, false, nil
	}
	if !strings.HasPrefix(msg.Topic, "orderbook.") {
		return domain.TopOfBook{}, false, nil
	}

	book, err := exchange.BookFromLevels(msg.Data.Bids, msg.Data.Asks, msg.Ts)
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bybit: %w", err)
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	return book, true, nil
}
