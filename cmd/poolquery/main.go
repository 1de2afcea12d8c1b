package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"poolstats/internal/cache"
	"poolstats/internal/config"
	"poolstats/internal/query"
	"poolstats/pkg/client"
	"poolstats/pkg/dex"
	"poolstats/pkg/dex/pancakeswap"
	"poolstats/pkg/dex/uniswap"
	"poolstats/pkg/format"
	"poolstats/pkg/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	source := flag.String("source", "all", "Source to query: uniswap, pancakeswap or all")
	filter := flag.Int("filter", 0, "Volume filter: 0 none, 1 below 1000 USD, 2 at or above 1000 USD")
	page := flag.Int("page", 0, "Zero-based page index")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall deadline for the query")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// A one-shot run gains nothing from a shared store.
	ttlCache := cache.New(cache.NewMemoryStore(), cache.DefaultTTL)
	httpClient := client.NewHTTPClient(cfg.Upstream.Timeout)
	uni := cache.NewFetcher(uniswap.NewClient(cfg.Sources.Uniswap.Endpoint, 0, httpClient, nil), ttlCache)
	pancake := cache.NewFetcher(pancakeswap.NewClient(cfg.Sources.PancakeSwap.Endpoint, 0, httpClient, nil), ttlCache)
	handler := query.NewHandler(dex.NewCombinedService(uni, pancake), nil, uni, pancake)

	startTime := time.Now()
	records, err := handler.Query(ctx, query.Request{Source: *source, Filter: *filter, Page: *page})
	if err != nil {
		log.Fatal().Err(err).Msg("Query failed")
	}
	log.Info().Int("records", len(records)).Dur("elapsed", time.Since(startTime)).Msg("Fetched pools")

	printTable(records)
}

func printTable(records []models.Record) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SWAP\tPAIR\tTXS\tVOLUME (USD)\tPRICE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s/%s\t%d\t%s\t%s\n",
			r.Source, r.Token0Symbol, r.Token1Symbol, r.TxCount,
			format.Number(r.VolumeUSD), format.Number(r.ReferencePrice))
	}
	w.Flush()
}
