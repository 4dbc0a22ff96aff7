package okx

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

const Name = "okx"

// BBOFeed streams the v5 public bbo-tbt channel (tick-by-tick best bid/offer).
type BBOFeed struct {
	wsURL string // e.g. wss://ws.okx.com:8443/ws/v5/public
}

func NewBBOFeed(wsURL string) *BBOFeed {
	return &BBOFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *BBOFeed) Name() string { return Name }

type subReq struct {
	Op   string   `json:"op"`
	Args []subArg `json:"args"`
}

type subArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type bboMsg struct {
	Event string    `json:"event"`
	Code  string    `json:"code"`
	Msg   string    `json:"msg"`
	Arg   subArg    `json:"arg"`
	Data  []bboData `json:"data"`
}

type bboData struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

func (f *BBOFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("okx ws_url empty")
	}
	sub, err := json.Marshal(subReq{
		Op:   "subscribe",
		Args: []subArg{{Channel: "bbo-tbt", InstID: exchange.DashedSymbols.Symbol(pair)}},
	})
	if err != nil {
		return nil, err
	}

	// okx drops connections idle for 30s; a text "ping" keeps it open
	s := &exchange.Stream{
		Name:      Name,
		URL:       f.wsURL,
		Subscribe: sub,
		Ping:      []byte("ping"),
		Decode:    decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	if string(b) == "pong" {
		return domain.TopOfBook{}, false, nil
	}

	var msg bboMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("okx: decode bbo-tbt: %w", err)
	}
	switch msg.Event {
	case "":
	case "error":
		return domain.TopOfBook{}, false, fmt.Errorf("okx: error %s: %s", msg.Code, msg.Msg)
	default:
		return domain.TopOfBook{}, false, nil
	}
	if len(msg.Data) == 0 {
		return domain.TopOfBook{}, false, nil
	}

	d := msg.Data[0]
	book, err := exchange.BookFromLevels(d.Bids, d.Asks, exchange.ParseMillis(d.Ts))
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("okx: %w", err)
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	return book, true, nil
}
