package composite

import (
	"context"
	"errors"

	"arbwatch/internal/application/port"
	"arbwatch/internal/domain"
)

// Repo fans writes out to every configured mirror. One failing mirror does
// not stop the others.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertBook(ctx context.Context, market, symbol string, book domain.TopOfBook) error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.UpsertBook(ctx, market, symbol, book); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Repo) PublishOpportunity(ctx context.Context, ev port.OpportunityEvent) error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.PublishOpportunity(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op; each mirror is closed by the service context closer chain.
func (r *Repo) Close() error { return nil }

var _ port.Repository = (*Repo)(nil)
