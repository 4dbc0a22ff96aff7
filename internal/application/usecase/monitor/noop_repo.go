package monitor

import (
	"context"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
)

type noopRepo struct{}

func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error {
	return nil
}
func (n *noopRepo) PublishOpportunity(ctx context.Context, ev port.OpportunityEvent) error {
	return nil
}
func (n *noopRepo) Close() error { return nil }
