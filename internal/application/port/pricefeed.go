package port

import (
	"context"

	"arbwatch/internal/domain"
)

// BookUpdate is one item of a feed: a fresh top of book, or a per-item error.
// An item with Err set does not end the stream.
type BookUpdate struct {
	Market string
	Book   domain.TopOfBook
	Err    error
}

type BookFeed interface {
	Name() string
	// Subscribe streams top-of-book updates for pair until ctx is done,
	// then closes the channel.
	Subscribe(ctx context.Context, pair domain.Pair) (<-chan BookUpdate, error)
}
