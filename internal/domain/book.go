package domain

import "math"

// Level is one side of the top of book: best price and the quantity resting there.
type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Valid reports whether the level can be used for spread math.
func (l Level) Valid() bool {
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price <= 0 {
		return false
	}
	if math.IsNaN(l.Qty) || math.IsInf(l.Qty, 0) || l.Qty < 0 {
		return false
	}
	return true
}

// TopOfBook holds the best bid and best ask of one market.
// It is a value: updates produce a new TopOfBook, never mutate one in place.
type TopOfBook struct {
	Bid    Level `json:"bid"`
	Ask    Level `json:"ask"`
	HasBid bool  `json:"has_bid"`
	HasAsk bool  `json:"has_ask"`
	Ts     int64 `json:"ts_ms"` // feed receive time, unix ms
}

// NewTopOfBook builds a book with both sides present.
func NewTopOfBook(bid, ask Level, ts int64) TopOfBook {
	return TopOfBook{Bid: bid, Ask: ask, HasBid: true, HasAsk: true, Ts: ts}
}

// Complete reports whether both sides are present.
func (b TopOfBook) Complete() bool {
	return b.HasBid && b.HasAsk
}

// Empty reports whether neither side has been seen yet.
func (b TopOfBook) Empty() bool {
	return !b.HasBid && !b.HasAsk
}

// Merge returns next with any side it lacks taken from b.
// Once a side has been set it is only ever replaced, never unset.
func (b TopOfBook) Merge(next TopOfBook) TopOfBook {
	out := next
	if !out.HasBid && b.HasBid {
		out.Bid = b.Bid
		out.HasBid = true
	}
	if !out.HasAsk && b.HasAsk {
		out.Ask = b.Ask
		out.HasAsk = true
	}
	if out.Ts == 0 {
		out.Ts = b.Ts
	}
	return out
}

// DropInvalid returns b with unusable sides marked absent, so a bad level
// never replaces a good one on Merge. dropped is true if a side was removed.
func (b TopOfBook) DropInvalid() (out TopOfBook, dropped bool) {
	out = b
	if out.HasBid && !out.Bid.Valid() {
		out.Bid, out.HasBid = Level{}, false
		dropped = true
	}
	if out.HasAsk && !out.Ask.Valid() {
		out.Ask, out.HasAsk = Level{}, false
		dropped = true
	}
	return out, dropped
}
