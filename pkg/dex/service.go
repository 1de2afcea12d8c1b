package dex

import (
	"context"
	"sort"

	"poolstats/pkg/models"
)

// Leg is one source's share of a combined page.
type Leg struct {
	Fetcher  PoolFetcher
	PageSize int
}

// Service merges pages from several fetchers into one page sorted by token0 symbol.
type Service struct {
	legs []Leg
}

func NewService(legs ...Leg) *Service {
	return &Service{
		legs: legs,
	}
}

// NewCombinedService splits a combined page between Uniswap and PancakeSwap (13 + 12).
func NewCombinedService(uniswap, pancakeswap PoolFetcher) *Service {
	return NewService(
		Leg{Fetcher: uniswap, PageSize: models.UniswapShareSize},
		Leg{Fetcher: pancakeswap, PageSize: models.PancakeSwapShareSize},
	)
}

type legResult struct {
	index   int
	records []models.Record
	err     error
}

// FetchAllPools fetches every leg concurrently for the same page and filter.
//
// The first error is returned as soon as it arrives, wrapped in an AggregateError.
// Remaining legs are left to finish on their own and their results are dropped.
// On success legs are concatenated in declaration order and stable-sorted by
// token0 symbol, so ties keep leg order and then upstream order.
func (s *Service) FetchAllPools(ctx context.Context, page int, filter models.FilterTier) ([]models.Record, error) {
	// Buffered so abandoned legs never block after an early return.
	resultsChan := make(chan legResult, len(s.legs))

	for i, leg := range s.legs {
		go func(i int, leg Leg) {
			spec := models.QuerySpec{
				Source:   leg.Fetcher.Source(),
				Filter:   filter,
				Page:     page,
				PageSize: leg.PageSize,
			}
			records, err := leg.Fetcher.FetchPools(ctx, spec)
			resultsChan <- legResult{index: i, records: records, err: err}
		}(i, leg)
	}

	perLeg := make([][]models.Record, len(s.legs))
	total := 0
	for range s.legs {
		res := <-resultsChan
		if res.err != nil {
			return nil, &AggregateError{Source: s.legs[res.index].Fetcher.Source(), Err: res.err}
		}
		perLeg[res.index] = res.records
		total += len(res.records)
	}

	// Fresh backing array: fetchers may hand out cached slices.
	allPools := make([]models.Record, 0, total)
	for _, records := range perLeg {
		allPools = append(allPools, records...)
	}

	sort.SliceStable(allPools, func(i, j int) bool {
		return allPools[i].Token0Symbol < allPools[j].Token0Symbol
	})

	return allPools, nil
}
