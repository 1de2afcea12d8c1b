package query

import (
	"context"
	"fmt"
	"time"

	"poolstats/internal/metrics"
	"poolstats/pkg/dex"
	"poolstats/pkg/models"

	"github.com/rs/zerolog/log"
)

// Request is an unvalidated inbound query as it arrives from a caller.
type Request struct {
	Source string
	Filter int
	Page   int
}

// ValidationError rejects a request before any cache or network access.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Validated is a request whose fields have been mapped onto closed types.
type Validated struct {
	Source models.Source
	Filter models.FilterTier
	Page   int
}

// Validate maps a raw request onto closed types.
func Validate(req Request) (Validated, error) {
	source, ok := models.ParseSource(req.Source)
	if !ok {
		return Validated{}, &ValidationError{
			Field:  "source",
			Value:  req.Source,
			Reason: "must be one of uniswap, pancakeswap, all",
		}
	}

	filter, ok := models.ParseFilterTier(req.Filter)
	if !ok {
		return Validated{}, &ValidationError{
			Field:  "filter",
			Value:  req.Filter,
			Reason: "must be 0 (none), 1 (low) or 2 (high)",
		}
	}

	if req.Page < 0 {
		return Validated{}, &ValidationError{
			Field:  "page",
			Value:  req.Page,
			Reason: "must not be negative",
		}
	}
	if req.Page > models.MaxPage {
		return Validated{}, &ValidationError{
			Field:  "page",
			Value:  req.Page,
			Reason: fmt.Sprintf("must not exceed %d", models.MaxPage),
		}
	}

	return Validated{Source: source, Filter: filter, Page: req.Page}, nil
}

// Handler answers pool queries from single-source fetchers or the combined service.
type Handler struct {
	fetchers   map[models.Source]dex.PoolFetcher
	aggregator *dex.Service
	metrics    *metrics.Metrics
}

// NewHandler wires the per-source fetchers (normally cache-backed) and the combined service.
func NewHandler(aggregator *dex.Service, m *metrics.Metrics, fetchers ...dex.PoolFetcher) *Handler {
	h := &Handler{
		fetchers:   make(map[models.Source]dex.PoolFetcher, len(fetchers)),
		aggregator: aggregator,
		metrics:    m,
	}
	for _, f := range fetchers {
		h.fetchers[f.Source()] = f
	}
	return h
}

// Query validates req and returns one page of records.
// No total count is available; callers page until a short page.
func (h *Handler) Query(ctx context.Context, req Request) ([]models.Record, error) {
	v, err := Validate(req)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, v)
}

// Run executes an already validated request.
func (h *Handler) Run(ctx context.Context, v Validated) ([]models.Record, error) {
	start := time.Now()
	records, err := h.dispatch(ctx, v)
	elapsed := time.Since(start)

	if h.metrics != nil {
		h.metrics.RecordQuery(v.Source.String(), elapsed, err)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("source", v.Source.String()).
			Str("filter", v.Filter.String()).
			Int("page", v.Page).
			Msg("Pool query failed")
		return nil, err
	}

	log.Debug().
		Str("source", v.Source.String()).
		Str("filter", v.Filter.String()).
		Int("page", v.Page).
		Int("records", len(records)).
		Dur("elapsed", elapsed).
		Msg("Pool query answered")

	return records, nil
}

func (h *Handler) dispatch(ctx context.Context, v Validated) ([]models.Record, error) {
	if v.Source == models.SourceAll {
		return h.aggregator.FetchAllPools(ctx, v.Page, v.Filter)
	}

	fetcher, ok := h.fetchers[v.Source]
	if !ok {
		return nil, fmt.Errorf("no fetcher configured for %s", v.Source)
	}

	return fetcher.FetchPools(ctx, models.QuerySpec{
		Source:   v.Source,
		Filter:   v.Filter,
		Page:     v.Page,
		PageSize: models.DefaultPageSize,
	})
}
