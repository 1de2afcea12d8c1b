package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poolstats/pkg/models"

	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleRecords(symbol string) []models.Record {
	return []models.Record{{Source: models.SourceUniswap, Token0Symbol: symbol, Token1Symbol: "USDC", TxCount: 3}}
}

func countingCompute(calls *int32, records []models.Record) ComputeFunc {
	return func(ctx context.Context) ([]models.Record, error) {
		atomic.AddInt32(calls, 1)
		return records, nil
	}
}

func TestGetOrComputeHit(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	c := New(store, DefaultTTL, WithClock(clock.Now))
	ctx := context.Background()

	var calls int32
	first, err := c.GetOrCompute(ctx, "uniswap:0:0:25", countingCompute(&calls, sampleRecords("WETH")))
	require.NoError(t, err)

	clock.Advance(DefaultTTL - time.Second)
	second, err := c.GetOrCompute(ctx, "uniswap:0:0:25", countingCompute(&calls, sampleRecords("DAI")))
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, first, second)
	require.Equal(t, "WETH", second[0].Token0Symbol)
}

func TestGetOrComputeRefreshAfterTTL(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	c := New(store, DefaultTTL, WithClock(clock.Now))
	ctx := context.Background()
	key := "pancakeswap:1:2:25"

	var calls int32
	_, err := c.GetOrCompute(ctx, key, countingCompute(&calls, sampleRecords("WETH")))
	require.NoError(t, err)

	entry, ok, _ := store.Get(ctx, key)
	require.True(t, ok)
	firstFetch := entry.FetchedAt

	// Exactly TTL old counts as stale.
	clock.Advance(DefaultTTL)
	records, err := c.GetOrCompute(ctx, key, countingCompute(&calls, sampleRecords("WETH")))
	require.NoError(t, err)
	require.Equal(t, sampleRecords("WETH"), records)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	entry, ok, _ = store.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, firstFetch+int64(DefaultTTL/time.Second), entry.FetchedAt)
}

func TestGetOrComputeFailureIsNotCached(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, DefaultTTL)
	ctx := context.Background()
	boom := errors.New("upstream down")

	_, err := c.GetOrCompute(ctx, "k", func(ctx context.Context) ([]models.Record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, store.Len())

	var calls int32
	records, err := c.GetOrCompute(ctx, "k", countingCompute(&calls, sampleRecords("UNI")))
	require.NoError(t, err)
	require.Equal(t, "UNI", records[0].Token0Symbol)
	require.Equal(t, int32(1), calls)
}

func TestGetOrComputeKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, DefaultTTL)
	ctx := context.Background()

	var calls int32
	_, err := c.GetOrCompute(ctx, "uniswap:0:0:25", countingCompute(&calls, sampleRecords("A")))
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "uniswap:0:0:13", countingCompute(&calls, sampleRecords("B")))
	require.NoError(t, err)

	require.Equal(t, int32(2), calls)
	require.Equal(t, 2, store.Len())
}

// TestGetOrComputeCoalescesConcurrentMisses verifies that simultaneous misses on one
// key run the computation once.
func TestGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTL)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]models.Record, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sampleRecords("WETH"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]models.Record, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, "shared", compute)
		}(i)
	}

	// Let every caller reach the in-flight computation before it completes.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, sampleRecords("WETH"), results[i])
	}
}

// TestGetOrComputeCancelledCallerDoesNotFailOthers verifies that the caller which
// started a shared computation can give up without failing the callers joined to it.
func TestGetOrComputeCancelledCallerDoesNotFailOthers(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, DefaultTTL)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) ([]models.Record, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		select {
		case <-release:
			return sampleRecords("WETH"), ctx.Err()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(firstCtx, "k", compute)
		firstErr <- err
	}()
	<-started

	type result struct {
		records []models.Record
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := c.GetOrCompute(context.Background(), "k", compute)
		second <- result{records, err}
	}()

	// Give the second caller time to join the in-flight computation.
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, sampleRecords("WETH"), res.records)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
}

type brokenStore struct {
	puts int
}

func (s *brokenStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("store offline")
}

func (s *brokenStore) Put(context.Context, Entry) error {
	s.puts++
	return errors.New("store offline")
}

func TestGetOrComputeSurvivesStoreFailures(t *testing.T) {
	store := &brokenStore{}
	c := New(store, DefaultTTL)

	var calls int32
	records, err := c.GetOrCompute(context.Background(), "k", countingCompute(&calls, sampleRecords("WETH")))
	require.NoError(t, err)
	require.Equal(t, sampleRecords("WETH"), records)
	require.Equal(t, 1, store.puts)
}

type stubFetcher struct {
	calls int32
}

func (f *stubFetcher) Source() models.Source { return models.SourcePancakeSwap }

func (f *stubFetcher) FetchPools(ctx context.Context, spec models.QuerySpec) ([]models.Record, error) {
	atomic.AddInt32(&f.calls, 1)
	return []models.Record{{Source: models.SourcePancakeSwap, Token0Symbol: spec.CacheKey()}}, nil
}

func TestFetcherKeysByQueryShape(t *testing.T) {
	inner := &stubFetcher{}
	store := NewMemoryStore()
	f := NewFetcher(inner, New(store, DefaultTTL))
	ctx := context.Background()

	spec := models.QuerySpec{Source: models.SourcePancakeSwap, Filter: models.FilterLow, Page: 2, PageSize: 12}
	first, err := f.FetchPools(ctx, spec)
	require.NoError(t, err)
	second, err := f.FetchPools(ctx, spec)
	require.NoError(t, err)

	require.Equal(t, int32(1), inner.calls)
	require.Equal(t, first, second)
	require.Equal(t, models.SourcePancakeSwap, f.Source())

	_, ok, err := store.Get(ctx, "pancakeswap:2:1:12")
	require.NoError(t, err)
	require.True(t, ok)

	spec.PageSize = 25
	_, err = f.FetchPools(ctx, spec)
	require.NoError(t, err)
	require.Equal(t, int32(2), inner.calls)
}
