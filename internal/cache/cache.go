package cache

import (
	"context"
	"time"

	"poolstats/internal/metrics"
	"poolstats/pkg/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched page is served before it is fetched again.
const DefaultTTL = 300 * time.Second

// Entry is one cached page. FetchedAt is in Unix seconds.
type Entry struct {
	Key       string          `json:"key"`
	FetchedAt int64           `json:"fetched_at"`
	Records   []models.Record `json:"records"`
}

// Store holds entries by key. Implementations must be safe for concurrent use.
// Entries are replaced whole on Put and never removed.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
}

// ComputeFunc produces a fresh payload for a key.
type ComputeFunc func(ctx context.Context) ([]models.Record, error)

// TTLCache is a get-or-compute cache over a Store.
// Concurrent misses for the same key share a single computation.
type TTLCache struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	metrics *metrics.Metrics
}

// Option configures a TTLCache.
type Option func(*TTLCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) {
		c.now = now
	}
}

// WithMetrics records hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *TTLCache) {
		c.metrics = m
	}
}

func New(store Store, ttl time.Duration, opts ...Option) *TTLCache {
	c := &TTLCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the stored payload for key while it is younger than the TTL.
// Otherwise it runs compute, stores the result stamped with the current time and
// returns it. A failed compute stores nothing.
//
// Store failures never fail the call: a read error counts as a miss and a write
// error is logged. A caller whose ctx ends stops waiting with ctx.Err(); the
// computation keeps running for the other callers on the same key.
func (c *TTLCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]models.Record, error) {
	if records, ok := c.lookup(ctx, key); ok {
		c.record("hit")
		return records, nil
	}
	c.record("miss")

	// The shared computation is detached from any one caller's cancellation;
	// each caller still stops waiting when its own context ends.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		records, err := compute(detached)
		if err != nil {
			return nil, err
		}

		entry := Entry{
			Key:       key,
			FetchedAt: c.now().Unix(),
			Records:   records,
		}
		if err := c.store.Put(detached, entry); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to store cache entry")
		}
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.record("shared")
		}
		return res.Val.([]models.Record), nil
	}
}

func (c *TTLCache) lookup(ctx context.Context, key string) ([]models.Record, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, treating as miss")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if c.now().Unix()-entry.FetchedAt >= int64(c.ttl/time.Second) {
		return nil, false
	}
	return entry.Records, true
}

func (c *TTLCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(result)
	}
}
