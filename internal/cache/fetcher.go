package cache

import (
	"context"

	"poolstats/pkg/dex"
	"poolstats/pkg/models"
)

// Fetcher serves pages of an inner fetcher through a TTLCache keyed by the query shape.
type Fetcher struct {
	inner dex.PoolFetcher
	cache *TTLCache
}

func NewFetcher(inner dex.PoolFetcher, cache *TTLCache) *Fetcher {
	return &Fetcher{inner: inner, cache: cache}
}

func (f *Fetcher) Source() models.Source {
	return f.inner.Source()
}

func (f *Fetcher) FetchPools(ctx context.Context, spec models.QuerySpec) ([]models.Record, error) {
	return f.cache.GetOrCompute(ctx, spec.CacheKey(), func(ctx context.Context) ([]models.Record, error) {
		return f.inner.FetchPools(ctx, spec)
	})
}
