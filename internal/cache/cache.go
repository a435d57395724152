package cache

import (
	"context"
	"time"

	"github.com/abdukhamidov/pos-admin/internal/domain"
)

// CatalogCache holds the POS terminal catalog per branch. Entries are
// invalidated on any write that changes availability or the product list, so
// a short TTL is a safety net rather than the consistency mechanism.
type CatalogCache interface {
	Get(ctx context.Context, key string) ([]domain.CatalogProduct, bool, error)
	Set(ctx context.Context, key string, value []domain.CatalogProduct, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]domain.CatalogProduct, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []domain.CatalogProduct, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
