package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_books (
  market TEXT NOT NULL,
  symbol TEXT NOT NULL,
  bid_price DOUBLE PRECISION,
  bid_qty DOUBLE PRECISION,
  ask_price DOUBLE PRECISION,
  ask_qty DOUBLE PRECISION,
  ts_ms BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (market, symbol)
);
`)
	return err
}

func (r *Repo) UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error {
	var bidPx, bidQty, askPx, askQty sql.NullFloat64
	if book.HasBid {
		bidPx = sql.NullFloat64{Float64: book.Bid.Price, Valid: true}
		bidQty = sql.NullFloat64{Float64: book.Bid.Qty, Valid: true}
	}
	if book.HasAsk {
		askPx = sql.NullFloat64{Float64: book.Ask.Price, Valid: true}
		askQty = sql.NullFloat64{Float64: book.Ask.Qty, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_books(market, symbol, bid_price, bid_qty, ask_price, ask_qty, ts_ms, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(market, symbol) DO UPDATE SET
		bid_price=excluded.bid_price, bid_qty=excluded.bid_qty,
		ask_price=excluded.ask_price, ask_qty=excluded.ask_qty,
		ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, market, symbol, bidPx, bidQty, askPx, askQty, book.Ts, time.Now().UTC())
	return err
}

func (r *Repo) PublishOpportunity(ctx context.Context, ev port.OpportunityEvent) error {
	return nil
}

var _ port.Repository = (*Repo)(nil)
