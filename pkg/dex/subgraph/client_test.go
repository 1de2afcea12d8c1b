package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"poolstats/pkg/client"
	"poolstats/pkg/dex"
	"poolstats/pkg/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const poolsResponse = `{"data":{"pools":[
	{"id":"0x01","token0":{"symbol":"WETH"},"token1":{"symbol":"USDC"},"txCount":"10","volumeUSD":"2000","token0Price":"0.0004","token1Price":"2500"},
	{"id":"0x02","token0":{"symbol":"DAI"},"token1":{"symbol":"USDC"},"txCount":"5","volumeUSD":"500","token0Price":"1.001","token1Price":"0.999"}
]}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		Source:   models.SourceUniswap,
		Endpoint: srv.URL,
		Schema:   testSchema,
	}, client.NewHTTPClient(0), nil)
}

func TestClientFetchPools(t *testing.T) {
	var gotMethod, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotQuery = req.Query
		w.Write([]byte(poolsResponse))
	})

	spec := models.QuerySpec{Source: models.SourceUniswap, Filter: models.FilterHigh, Page: 3, PageSize: 13}
	records, err := c.FetchPools(context.Background(), spec)
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, gotMethod)
	require.Contains(t, gotQuery, "skip: 39, first: 13")
	require.Contains(t, gotQuery, "volumeUSD_gte: 1000")

	require.Len(t, records, 2)
	// Upstream order is preserved.
	require.Equal(t, "WETH", records[0].Token0Symbol)
	require.Equal(t, 2500.0, records[0].ReferencePrice)
	require.Equal(t, "DAI", records[1].Token0Symbol)
	require.Equal(t, 1.001, records[1].ReferencePrice)
}

func TestClientEmptyCollection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"pools":[]}}`))
	})

	records, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestClientUpstreamErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"bad status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>gateway</html>"))
		},
		"missing collection": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"pairs":[]}}`))
		},
		"graphql errors only": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":[{"message":"indexing error"}]}`))
		},
		"collection not array": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"pools":{}}}`))
		},
		"item without token symbol": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"pools":[{"id":"0x01","token0":{},"token1":{"symbol":"USDC"},"txCount":"1","volumeUSD":"1","token0Price":"1","token1Price":"1"}]}}`))
		},
	}

	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, handler)
			_, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})

			var upstreamErr *dex.UpstreamError
			require.True(t, errors.As(err, &upstreamErr), "got %v", err)
			require.Equal(t, models.SourceUniswap, upstreamErr.Source)
		})
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c := NewClient(Config{Source: models.SourcePancakeSwap, Endpoint: endpoint, Schema: testSchema}, client.NewHTTPClient(0), nil)
	_, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 12})

	var upstreamErr *dex.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, models.SourcePancakeSwap, upstreamErr.Source)
}

// TestClientSingleAttempt verifies a failed call is not retried.
func TestClientSingleAttempt(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type recordingRecorder struct {
	calls int
	errs  int
}

func (r *recordingRecorder) RecordUpstreamRequest(source string, _ time.Duration, err error) {
	r.calls++
	if err != nil {
		r.errs++
	}
}

func TestClientRecordsEveryRequest(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(poolsResponse))
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	c := NewClient(Config{
		Source:            models.SourceUniswap,
		Endpoint:          srv.URL,
		Schema:            testSchema,
		RequestsPerSecond: 1000,
	}, client.NewHTTPClient(time.Second), rec)

	_, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})
	require.NoError(t, err)

	fail.Store(true)
	_, err = c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})
	require.Error(t, err)

	require.Equal(t, 2, rec.calls)
	require.Equal(t, 1, rec.errs)
}

func TestClientRateLimiterHonorsContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(poolsResponse))
	})
	c.config.RequestsPerSecond = 0.001
	c.rateLimiter = rate.NewLimiter(rate.Limit(0.001), 1)

	// The first call takes the only token.
	_, err := c.FetchPools(context.Background(), models.QuerySpec{PageSize: 25})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchPools(ctx, models.QuerySpec{PageSize: 25})

	var upstreamErr *dex.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, "rate limiter wait", upstreamErr.Op)
}
