package models

import (
	"fmt"
	"math"
	"strings"
)

// Source identifies an upstream exchange subgraph, or the combined view of both.
type Source int

const (
	SourceUniswap Source = iota
	SourcePancakeSwap
	SourceAll
)

// String returns the wire name of the source. It doubles as the cache key prefix.
func (s Source) String() string {
	switch s {
	case SourceUniswap:
		return "uniswap"
	case SourcePancakeSwap:
		return "pancakeswap"
	case SourceAll:
		return "all"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalText encodes the source as its wire name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (s *Source) UnmarshalText(text []byte) error {
	parsed, ok := ParseSource(string(text))
	if !ok {
		return fmt.Errorf("unknown source %q", string(text))
	}
	*s = parsed
	return nil
}

// ParseSource maps a wire name to a Source. Matching is case-insensitive.
func ParseSource(name string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "uniswap":
		return SourceUniswap, true
	case "pancakeswap":
		return SourcePancakeSwap, true
	case "all":
		return SourceAll, true
	}
	return 0, false
}

// FilterTier selects a volume predicate for the upstream query.
type FilterTier int

const (
	FilterNone FilterTier = iota // no predicate
	FilterLow                    // volumeUSD < VolumeThreshold
	FilterHigh                   // volumeUSD >= VolumeThreshold
)

// VolumeThreshold splits the low and high filter tiers, in USD.
const VolumeThreshold = 1000

func (f FilterTier) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterLow:
		return "low"
	case FilterHigh:
		return "high"
	default:
		return fmt.Sprintf("filter(%d)", int(f))
	}
}

// ParseFilterTier maps the numeric wire value (0, 1, 2) to a FilterTier.
func ParseFilterTier(v int) (FilterTier, bool) {
	switch FilterTier(v) {
	case FilterNone, FilterLow, FilterHigh:
		return FilterTier(v), true
	}
	return 0, false
}

// Page sizes. A combined page takes 13 rows from Uniswap and 12 from PancakeSwap.
const (
	DefaultPageSize      = 25
	UniswapShareSize     = 13
	PancakeSwapShareSize = 12
)

// MaxPage is the largest page index whose skip fits in an int at the default page size.
const MaxPage = math.MaxInt / DefaultPageSize

// QuerySpec is one page request against a single source.
type QuerySpec struct {
	Source   Source
	Filter   FilterTier
	Page     int
	PageSize int
}

// Skip returns the number of upstream items preceding the page.
func (q QuerySpec) Skip() int {
	return q.Page * q.PageSize
}

// CacheKey returns the composite key identifying this query shape.
// Every field takes part so two distinct specs never share a key.
func (q QuerySpec) CacheKey() string {
	return fmt.Sprintf("%s:%d:%d:%d", q.Source, q.Page, int(q.Filter), q.PageSize)
}

// Record is one normalized liquidity pool statistic.
type Record struct {
	Source         Source  `json:"swap"`
	PoolID         string  `json:"pool,omitempty"`
	Token0Symbol   string  `json:"token0"`
	Token1Symbol   string  `json:"token1"`
	TxCount        int64   `json:"txCount"`
	VolumeUSD      float64 `json:"volume"`
	ReferencePrice float64 `json:"amount"`
}
