package uniswap

import (
	"poolstats/pkg/client"
	"poolstats/pkg/dex/subgraph"
	"poolstats/pkg/models"
)

// DefaultEndpoint is the hosted Uniswap v3 subgraph.
const DefaultEndpoint = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3"

// Schema is the Uniswap v3 pool collection layout.
var Schema = subgraph.Schema{
	Collection:   "pools",
	TxCountField: "txCount",
}

func NewClient(endpoint string, requestsPerSecond float64, httpClient *client.HTTPClient, recorder subgraph.Recorder) *subgraph.Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return subgraph.NewClient(subgraph.Config{
		Source:            models.SourceUniswap,
		Endpoint:          endpoint,
		Schema:            Schema,
		RequestsPerSecond: requestsPerSecond,
	}, httpClient, recorder)
}
