package db

import (
	"context"

	"lclpaste/pkg/domain"
)

// Store is the persistence abstraction for pastes. Insert assigns the
// storage ref; Merge applies a sparse patch keyed by that ref so
// concurrent updates to disjoint fields never clobber each other. Each
// call is a single atomic store operation.
type Store interface {
	Insert(ctx context.Context, p *domain.Paste) error
	GetByPublicID(ctx context.Context, publicID string) (*domain.Paste, error)
	GetByRef(ctx context.Context, ref string) (*domain.Paste, error)
	Merge(ctx context.Context, ref string, patch domain.Patch) error
	ListLatest(ctx context.Context, limit int) ([]domain.Paste, error)
	ListOwned(ctx context.Context, owner string) ([]domain.Paste, error)
	ExistsPublicID(ctx context.Context, publicID string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
