package port

import (
	"context"

	"arbwatch/internal/domain"
	"arbwatch/internal/domain/model"
)

// OpportunityEvent is what gets published for a delivered alert.
type OpportunityEvent struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Ts          int64             `json:"ts_ms"`
	Opportunity model.Opportunity `json:"opportunity"`
}

// Repository mirrors the latest books outside the process. It is write-only:
// nothing is read back on restart.
type Repository interface {
	UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error
	PublishOpportunity(ctx context.Context, ev OpportunityEvent) error
	Close() error
}
