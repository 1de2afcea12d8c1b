package subgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"poolstats/pkg/client"
	"poolstats/pkg/dex"
	"poolstats/pkg/models"
)

// Recorder receives one observation per upstream request.
type Recorder interface {
	RecordUpstreamRequest(source string, d time.Duration, err error)
}

// Config describes one subgraph source.
type Config struct {
	Source   models.Source
	Endpoint string
	Schema   Schema

	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64
}

// Client executes page queries against one subgraph endpoint.
// It makes exactly one attempt per call.
type Client struct {
	config      Config
	httpClient  *client.HTTPClient
	rateLimiter *rate.Limiter
	recorder    Recorder
}

func NewClient(cfg Config, httpClient *client.HTTPClient, recorder Recorder) *Client {
	c := &Client{
		config:     cfg,
		httpClient: httpClient,
		recorder:   recorder,
	}
	if cfg.RequestsPerSecond > 0 {
		c.rateLimiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

func (c *Client) Source() models.Source {
	return c.config.Source
}

type requestBody struct {
	Query string `json:"query"`
}

// FetchPools runs the page query for spec and normalizes the items in upstream order.
// All failures are returned as *dex.UpstreamError.
func (c *Client) FetchPools(ctx context.Context, spec models.QuerySpec) ([]models.Record, error) {
	start := time.Now()
	records, err := c.fetch(ctx, spec)
	if c.recorder != nil {
		c.recorder.RecordUpstreamRequest(c.config.Source.String(), time.Since(start), err)
	}
	return records, err
}

func (c *Client) fetch(ctx context.Context, spec models.QuerySpec) ([]models.Record, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, c.upstreamError("rate limiter wait", err)
		}
	}

	query := BuildQuery(c.config.Schema, spec.Page, spec.Filter, spec.PageSize)

	body, err := c.httpClient.PostJSON(ctx, c.config.Endpoint, requestBody{Query: query.String()})
	if err != nil {
		return nil, c.upstreamError("posting query", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, c.upstreamError("decoding response", fmt.Errorf("invalid JSON body"))
	}

	path := "data." + c.config.Schema.Collection
	items := gjson.GetBytes(body, path)
	if !items.Exists() || !items.IsArray() {
		return nil, c.upstreamError("decoding response", fmt.Errorf("missing %s array", path))
	}

	raw := items.Array()
	records := make([]models.Record, 0, len(raw))
	for i, item := range raw {
		record, err := Normalize(c.config.Source, c.config.Schema, item)
		if err != nil {
			return nil, c.upstreamError("normalizing item", fmt.Errorf("item %d: %w", i, err))
		}
		records = append(records, record)
	}

	return records, nil
}

func (c *Client) upstreamError(op string, err error) error {
	return &dex.UpstreamError{Source: c.config.Source, Op: op, Err: err}
}
