package mexc

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

	"google.golang.org/protobuf/encoding/protowire"
)

const Name = "mexc"

// PushDataV3ApiWrapper / PublicAggreBookTickerV3Api 字段号
const (
	fieldChannel    protowire.Number = 1
	fieldSymbol     protowire.Number = 3
	fieldCreateTime protowire.Number = 5
	fieldSendTime   protowire.Number = 6
	fieldBookTicker protowire.Number = 315

	fieldBidPrice protowire.Number = 1
	fieldBidQty   protowire.Number = 2
	fieldAskPrice protowire.Number = 3
	fieldAskQty   protowire.Number = 4
)

// BookTickerFeed streams the v3 spot aggregated bookTicker channel. Pushes
// arrive as protobuf binary frames; acks and pongs are JSON text.
type BookTickerFeed struct {
	wsURL string // e.g. wss://wbs-api.mexc.com/ws
}

func NewBookTickerFeed(wsURL string) *BookTickerFeed {
	return &BookTickerFeed{wsURL: strings.TrimSpace(wsURL)}
}

func (f *BookTickerFeed) Name() string { return Name }

type subReq struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type controlMsg struct {
	ID   int    `json:"id"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func channel(pair domain.Pair) string {
	return "spot@public.aggre.bookTicker.v3.api.pb@100ms@" + exchange.JoinedSymbols.Symbol(pair)
}

func (f *BookTickerFeed) Subscribe(ctx context.Context, pair domain.Pair) (<-chan port.BookUpdate, error) {
	if f.wsURL == "" {
		return nil, errors.New("mexc ws_url empty")
	}
	sub, err := json.Marshal(subReq{Method: "SUBSCRIPTION", Params: []string{channel(pair)}})
	if err != nil {
		return nil, err
	}

	s := &exchange.Stream{
		Name:         Name,
		URL:          f.wsURL,
		Subscribe:    sub,
		Ping:         []byte(`{"method":"PING"}`),
		PingInterval: 20 * time.Second,
		Decode:       decode,
	}
	return s.Start(ctx)
}

func decode(b []byte) (domain.TopOfBook, bool, error) {
	if len(b) > 0 && b[0] == '{' {
		var msg controlMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("mexc: decode control: %w", err)
		}
		// 订阅失败时 code 也可能是 0
		if msg.Code != 0 || strings.HasPrefix(msg.Msg, "Not Subscribed") {
			return domain.TopOfBook{}, false, fmt.Errorf("mexc: %d %s", msg.Code, msg.Msg)
		}
		return domain.TopOfBook{}, false, nil
	}

	push, err := parsePush(b)
	if err != nil {
		return domain.TopOfBook{}, false, fmt.Errorf("mexc: decode push: %w", err)
	}
	if push.ticker == nil {
		return domain.TopOfBook{}, false, nil
	}

	t := push.ticker
	var book domain.TopOfBook
	if t.bidPrice != "" {
		if book.Bid, err = exchange.ParseLevel(t.bidPrice, t.bidQty); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("mexc: bid: %w", err)
		}
		book.HasBid = true
	}
	if t.askPrice != "" {
		if book.Ask, err = exchange.ParseLevel(t.askPrice, t.askQty); err != nil {
			return domain.TopOfBook{}, false, fmt.Errorf("mexc: ask: %w", err)
		}
		book.HasAsk = true
	}
	if book.Empty() {
		return domain.TopOfBook{}, false, nil
	}
	book.Ts = push.sendTime
	if book.Ts == 0 {
		book.Ts = push.createTime
	}
	return book, true, nil
}

type pushData struct {
	channel    string
	symbol     string
	createTime int64
	sendTime   int64
	ticker     *bookTicker
}

type bookTicker struct {
	bidPrice, bidQty string
	askPrice, askQty string
}

func parsePush(b []byte) (pushData, error) {
	var p pushData
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldChannel && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.channel = v
			return n, nil
		case num == fieldSymbol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.symbol = v
			return n, nil
		case num == fieldCreateTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.createTime = int64(v)
			return n, nil
		case num == fieldSendTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.sendTime = int64(v)
			return n, nil
		case num == fieldBookTicker && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t, err := parseBookTicker(v)
			if err != nil {
				return 0, err
			}
			p.ticker = &t
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return p, err
}

func parseBookTicker(b []byte) (bookTicker, error) {
	var t bookTicker
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeString(b)
		switch num {
		case fieldBidPrice:
			t.bidPrice = v
		case fieldBidQty:
			t.bidQty = v
		case fieldAskPrice:
			t.askPrice = v
		case fieldAskQty:
			t.askQty = v
		}
		return n, nil
	})
	return t, err
}

// walk calls field for every top-level field of a protobuf message. field
// consumes the value and returns its length, or a negative protowire code.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
