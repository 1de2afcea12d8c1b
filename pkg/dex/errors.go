package dex

import (
	"fmt"

	"poolstats/pkg/models"
)

// UpstreamError reports a failed call to a source: transport failure, bad status,
// unparseable body, or an unexpected response shape.
type UpstreamError struct {
	Source models.Source
	Op     string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %s: %v", e.Source, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AggregateError wraps the first failure observed while fetching the combined view.
type AggregateError struct {
	Source models.Source
	Err    error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("aggregating pools: %s failed: %v", e.Source, e.Err)
}

func (e *AggregateError) Unwrap() error {
	return e.Err
}
