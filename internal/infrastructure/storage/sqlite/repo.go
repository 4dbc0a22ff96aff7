package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
)

// Repo keeps one row per (market, symbol) with the latest top of book.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  bid_price REAL,
  bid_qty REAL,
  ask_price REAL,
  ask_qty REAL,
  ts_ms INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (market, symbol)
);
`)
	return err
}

func (r *Repo) UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error {
	bidPx, bidQty := nullLevel(book.HasBid, book.Bid)
	askPx, askQty := nullLevel(book.HasAsk, book.Ask)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_books(market, symbol, bid_price, bid_qty, ask_price, ask_qty, ts_ms, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market, symbol) DO UPDATE SET
		bid_price=excluded.bid_price, bid_qty=excluded.bid_qty,
		ask_price=excluded.ask_price, ask_qty=excluded.ask_qty,
		ts_ms=excluded.ts_ms, updated_at=excluded.updated_at
	`, market, symbol, bidPx, bidQty, askPx, askQty, book.Ts, time.Now().UnixMilli())
	return err
}

// PublishOpportunity is a no-op: opportunities are not stored.
func (r *Repo) PublishOpportunity(ctx context.Context, ev port.OpportunityEvent) error {
	return nil
}

// latestBook reads back one mirrored row.
func (r *Repo) latestBook(ctx context.Context, market, symbol string) (domain.TopOfBook, error) {
	var (
		bidPx, bidQty, askPx, askQty sql.NullFloat64
		book                         domain.TopOfBook
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT bid_price, bid_qty, ask_price, ask_qty, ts_ms FROM latest_books WHERE market=? AND symbol=?`,
		market, symbol).Scan(&bidPx, &bidQty, &askPx, &askQty, &book.Ts)
	if err != nil {
		return domain.TopOfBook{}, err
	}
	if bidPx.Valid {
		book.Bid, book.HasBid = domain.Level{Price: bidPx.Float64, Qty: bidQty.Float64}, true
	}
	if askPx.Valid {
		book.Ask, book.HasAsk = domain.Level{Price: askPx.Float64, Qty: askQty.Float64}, true
	}
	return book, nil
}

func nullLevel(ok bool, l domain.Level) (sql.NullFloat64, sql.NullFloat64) {
	if !ok {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: l.Price, Valid: true}, sql.NullFloat64{Float64: l.Qty, Valid: true}
}

var _ port.Repository = (*Repo)(nil)
