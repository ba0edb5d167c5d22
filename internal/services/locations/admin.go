package locations

import (
	"context"

	"github.com/BearBump/TrackIt/internal/models"
)

// Admin exposes the operator-facing cache corrections. No state of its own;
// privilege checks are the caller's job.
type Admin struct {
	cache *Cache
}

func NewAdmin(cache *Cache) *Admin {
	return &Admin{cache: cache}
}

func (a *Admin) ListLocations(ctx context.Context, failedOnly bool) ([]*models.LocationEntry, error) {
	return a.cache.List(ctx, failedOnly)
}

func (a *Admin) SetLocationAlias(ctx context.Context, key, alias string) (*models.LocationEntry, error) {
	return a.cache.SetAlias(ctx, key, alias)
}

func (a *Admin) RetryLocation(ctx context.Context, key string) (*models.LocationEntry, error) {
	return a.cache.Retry(ctx, key)
}
