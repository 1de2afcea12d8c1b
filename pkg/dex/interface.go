package dex

import (
	"context"

	"poolstats/pkg/models"
)

// PoolFetcher returns one page of normalized pools from a single source.
type PoolFetcher interface {
	FetchPools(ctx context.Context, spec models.QuerySpec) ([]models.Record, error)
	Source() models.Source
}
