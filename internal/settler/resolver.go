package settler

import (
	"context"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/cache"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// CacheResolver resolves fixture results from the canonical snapshots
// the aggregator writes back to the cache. A missing fixture resolves
// to nil, which the engine treats as "not yet", not as a failure.
type CacheResolver struct {
	store *cache.Store
}

// NewCacheResolver creates a resolver over the shared cache store.
func NewCacheResolver(store *cache.Store) *CacheResolver {
	return &CacheResolver{store: store}
}

// Resolve reads the canonical fixture snapshot.
func (r *CacheResolver) Resolve(ctx context.Context, fixtureID string) (*models.UnifiedMatch, error) {
	var match models.UnifiedMatch
	meta, err := r.store.Get(ctx, cache.FixtureKey(fixtureID), &match)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	return &match, nil
}
