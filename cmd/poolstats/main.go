package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poolstats/internal/api"
	"poolstats/internal/cache"
	"poolstats/internal/config"
	"poolstats/internal/metrics"
	"poolstats/internal/persistence"
	"poolstats/internal/query"
	"poolstats/pkg/client"
	"poolstats/pkg/dex"
	"poolstats/pkg/dex/pancakeswap"
	"poolstats/pkg/dex/uniswap"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// .env file is optional
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Logging)
	log.Info().Msg("Starting poolstats - subgraph pool statistics service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Application error")
	}

	log.Info().Msg("poolstats shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	ttlCache := cache.New(store, cache.DefaultTTL, cache.WithMetrics(m))
	handler := newHandler(cfg, ttlCache, m)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server := api.NewServer(api.Config{
		Port:         cfg.Server.Port,
		FeedInterval: cfg.Server.FeedInterval,
		MetricsPath:  metricsPath,
	}, handler, m)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// newHandler wires both subgraph clients behind the shared TTL cache.
func newHandler(cfg *config.Config, ttlCache *cache.TTLCache, m *metrics.Metrics) *query.Handler {
	httpClient := client.NewHTTPClient(cfg.Upstream.Timeout)

	uni := cache.NewFetcher(
		uniswap.NewClient(cfg.Sources.Uniswap.Endpoint, cfg.Sources.Uniswap.RequestsPerSecond, httpClient, m),
		ttlCache,
	)
	pancake := cache.NewFetcher(
		pancakeswap.NewClient(cfg.Sources.PancakeSwap.Endpoint, cfg.Sources.PancakeSwap.RequestsPerSecond, httpClient, m),
		ttlCache,
	)

	return query.NewHandler(dex.NewCombinedService(uni, pancake), m, uni, pancake)
}

type closableStore interface {
	cache.Store
	io.Closer
}

type memoryStore struct {
	*cache.MemoryStore
}

func (memoryStore) Close() error { return nil }

func openStore(ctx context.Context, cfg config.CacheConfig) (closableStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := persistence.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		count, err := store.EntryCount(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to count cached entries")
		}
		log.Info().Str("path", cfg.SQLitePath).Int("entries", count).Msg("SQLite cache initialized")
		return store, nil

	case config.BackendRedis:
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("Redis cache connected")
		return store, nil

	case config.BackendMemory:
		log.Info().Msg("In-memory cache initialized")
		return memoryStore{cache.NewMemoryStore()}, nil
	}

	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
