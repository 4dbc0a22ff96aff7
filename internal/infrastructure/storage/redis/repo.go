package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Repo mirrors latest books into a hash and publishes opportunity events.
// Nothing is read back.
type Repo struct {
	rdb      *redis.Client
	ttl      time.Duration
	keyBooks string // prefix + ":books"
	oppChan  string // prefix + ":opportunities"
}

type LatestBook struct {
	Market string           `json:"market"`
	Symbol string           `json:"symbol"`
	Book   domain.TopOfBook `json:"book"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Repo {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "arbwatch"
	}
	return &Repo{
		rdb:      rdb,
		ttl:      ttl,
		keyBooks: prefix + ":books",
		oppChan:  prefix + ":opportunities",
	}
}

func (r *Repo) BooksKey() string           { return r.keyBooks }
func (r *Repo) OpportunityChannel() string { return r.oppChan }

// Field is the hash field for one market and symbol, e.g. "binance:BTC/USDT".
func Field(market, symbol string) string {
	return fmt.Sprintf("%s:%s", market, symbol)
}

func (r *Repo) UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error {
	b, err := json.Marshal(LatestBook{Market: market, Symbol: symbol, Book: book})
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyBooks, Field(market, symbol), string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyBooks, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// PublishOpportunity sends ev to subscribers only; there is no stream or list.
func (r *Repo) PublishOpportunity(ctx context.Context, ev port.OpportunityEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.oppChan, string(b)).Err()
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)
