package pancakeswap

import (
	"poolstats/pkg/client"
	"poolstats/pkg/dex/subgraph"
	"poolstats/pkg/models"
)

// DefaultEndpoint is the hosted PancakeSwap Ethereum exchange subgraph.
const DefaultEndpoint = "https://api.thegraph.com/subgraphs/name/pancakeswap/exhange-eth"

// Schema is the PancakeSwap pair collection layout. Pairs count
// transactions in totalTransactions rather than txCount.
var Schema = subgraph.Schema{
	Collection:   "pairs",
	TxCountField: "totalTransactions",
}

func NewClient(endpoint string, requestsPerSecond float64, httpClient *client.HTTPClient, recorder subgraph.Recorder) *subgraph.Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return subgraph.NewClient(subgraph.Config{
		Source:            models.SourcePancakeSwap,
		Endpoint:          endpoint,
		Schema:            Schema,
		RequestsPerSecond: requestsPerSecond,
	}, httpClient, recorder)
}
