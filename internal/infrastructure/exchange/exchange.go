package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout  = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	minBackoff   = 500 * time.Millisecond
	maxBackoff   = 10 * time.Second
)

// DecodeFunc parses one websocket frame. ok is false for frames that carry
// no book data (acks, pongs, heartbeats).
type DecodeFunc func(b []byte) (book domain.TopOfBook, ok bool, err error)

// Stream is one venue's top-of-book websocket subscription.
type Stream struct {
	Name string
	URL  string

	// Subscribe is written once after every (re)connect; nil when the URL
	// itself selects the stream.
	Subscribe []byte
	// Ping is sent as a text frame each PingInterval; nil sends a
	// websocket ping control frame instead.
	Ping         []byte
	PingInterval time.Duration

	Decode DecodeFunc
}

// Start runs the stream in the background and returns its update channel.
// The channel is closed once ctx is done.
func (s *Stream) Start(ctx context.Context) (<-chan port.BookUpdate, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("%s: ws url empty", s.Name)
	}
	if s.Decode == nil {
		return nil, fmt.Errorf("%s: decoder missing", s.Name)
	}
	out := make(chan port.BookUpdate, 64)
	go s.run(ctx, out)
	return out, nil
}

func (s *Stream) run(ctx context.Context, out chan<- port.BookUpdate) {
	defer close(out)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", s.Name).Str("url", s.URL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, s.URL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", s.Name).Err(err).Msg("ws dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if s.Subscribe != nil {
			if err := conn.WriteMessage(websocket.TextMessage, s.Subscribe); err != nil {
				log.Error().Str("feed", s.Name).Err(err).Msg("ws subscribe failed")
				_ = conn.Close()
				if !sleep(ctx, backoff) {
					return
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
		}

		backoff = minBackoff
		log.Info().Str("feed", s.Name).Msg("ws connected")

		err = s.readLoop(ctx, conn, func(b []byte) {
			book, ok, derr := s.Decode(b)
			if derr != nil {
				emit(ctx, out, port.BookUpdate{Market: s.Name, Err: derr})
				return
			}
			if !ok {
				return
			}
			if book.Ts == 0 {
				book.Ts = time.Now().UnixMilli()
			}
			emit(ctx, out, port.BookUpdate{Market: s.Name, Book: book})
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", s.Name).Err(err).Msg("ws disconnected, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	every := s.PingInterval
	if every <= 0 {
		every = pingInterval
	}
	pingTicker := time.NewTicker(every)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// unblock the reader goroutine
			_ = conn.Close()
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			if s.Ping != nil {
				_ = conn.WriteMessage(websocket.TextMessage, s.Ping)
			} else {
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
			}
		}
	}
}

func emit(ctx context.Context, out chan<- port.BookUpdate, u port.BookUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ParseLevel converts venue price and quantity strings into a level.
func ParseLevel(price, qty string) (domain.Level, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	if err != nil {
		return domain.Level{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(qty), 64)
	if err != nil {
		return domain.Level{}, fmt.Errorf("parse qty %q: %w", qty, err)
	}
	return domain.Level{Price: p, Qty: q}, nil
}

// FirstLevel parses the best entry of a [[price, qty, ...], ...] array.
// ok is false when the side is empty.
func FirstLevel(levels [][]string) (lvl domain.Level, ok bool, err error) {
	if len(levels) == 0 {
		return domain.Level{}, false, nil
	}
	if len(levels[0]) < 2 {
		return domain.Level{}, false, errors.New("book level has fewer than 2 fields")
	}
	lvl, err = ParseLevel(levels[0][0], levels[0][1])
	if err != nil {
		return domain.Level{}, false, err
	}
	return lvl, true, nil
}

// BookFromLevels builds a top of book from the raw bid and ask arrays.
// A side missing from the frame is left absent.
func BookFromLevels(bids, asks [][]string, ts int64) (domain.TopOfBook, error) {
	var b domain.TopOfBook
	var err error
	if b.Bid, b.HasBid, err = FirstLevel(bids); err != nil {
		return domain.TopOfBook{}, fmt.Errorf("bid: %w", err)
	}
	if b.Ask, b.HasAsk, err = FirstLevel(asks); err != nil {
		return domain.TopOfBook{}, fmt.Errorf("ask: %w", err)
	}
	b.Ts = ts
	return b, nil
}

// ParseMillis parses a unix millisecond timestamp string; 0 on failure.
func ParseMillis(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// JoinURL appends path to the base websocket url.
func JoinURL(base, path string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}
