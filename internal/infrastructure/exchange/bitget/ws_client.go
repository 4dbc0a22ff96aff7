package bitget

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

const Name = "bitget"

// BooksFeed streams the v2 spot books1 channel.
type BooksFeed struct {
	wsURL string // e.g. wss://ws.bitget.com/v2/ws/public
}

func NewBooksFeed(wsURL string) *BooksFeed {
	return &BooksFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *BooksFeed) Name() string { return Name }

type subReq struct {
	Op   string   `json:"op"`
	Args []subArg `json:"args"`
}

type subArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type booksMsg struct {
	Event  string          `json:"event"`
	Code   json.RawMessage `json:"code"`
	Msg    string          `json:"msg"`
	Action string          `json:"action"`
	Arg    subArg          `json:"arg"`
	Data   []booksData     `json:"data"`
}

type booksData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

func (f *BooksFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("bitget ws_url empty")
	}
	sub, err := json.Marshal(subReq{
		Op: "subscribe",
		Args: []subArg{{
			InstType: "SPOT",
			Channel:  "books1",
			InstID:   exchange.JoinedSymbols.Symbol(pair),
		}},
	})
	if err != nil {
		return nil, err
	}

	s := &exchange.Stream{
		Name:         Name,
		URL:          f.wsURL,
		Subscribe:    sub,
		Ping:         []byte("ping"),
		PingInterval: 30 * time.Second,
		Decode:       decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	if string(b) == "pong" {
		return domain.TopOfBook{}, false, nil
	}

	var msg booksMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bitget: decode books1: %w", err)
	}
	switch msg.Event {
	case "":
	case "error":
		return domain.TopOfBook{}, false, fmt.Errorf("bitget: error %s: %s", string(msg.Code), msg.Msg)
	default:
		return domain.TopOfBook{}, false, nil
	}
	if len(msg.Data) == 0 {
		return domain.TopOfBook{}, false, nil
	}

	d := msg.Data[0]
	book, err := exchange.BookFromLevels(d.Bids, d.Asks, exchange.ParseMillis(d.Ts))
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("bitget: %w", err)
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	return book, true, nil
}
