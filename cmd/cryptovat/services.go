package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptovat/internal/cache"
	"github.com/sawpanic/cryptovat/internal/config"
	"github.com/sawpanic/cryptovat/internal/deepdive"
	"github.com/sawpanic/cryptovat/internal/infrastructure/db"
	"github.com/sawpanic/cryptovat/internal/metrics"
	"github.com/sawpanic/cryptovat/internal/pipeline"
	"github.com/sawpanic/cryptovat/internal/providers"
)

// services are the long-lived collaborators built from the config.
type services struct {
	deps     providers.Deps
	cache    cache.Cache
	db       *db.Manager
	metrics  *metrics.Registry
	pipeline *pipeline.Pipeline
	deepDive *deepdive.Service

	closers []func() error
}

// buildServices wires the cache, optional database and pipeline.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	s := &services{
		deps:    pipeline.NewDeps(cfg),
		metrics: metrics.NewRegistry(),
	}

	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	s.cache = c
	if closer, ok := c.(interface{ Close() error }); ok {
		s.closers = append(s.closers, closer.Close)
	}

	s.db, err = db.NewManager(ctx, db.FromSettings(cfg.Database))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	s.closers = append(s.closers, s.db.Close)

	opts := []pipeline.Option{
		pipeline.WithCache(s.cache),
		pipeline.WithMetrics(s.metrics),
	}
	if s.db.IsEnabled() {
		if err := s.db.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		opts = append(opts, pipeline.WithRuns(s.db.Repository().Runs))
	}
	s.pipeline = pipeline.New(cfg, providers.FromConfig(cfg, s.deps), opts...)

	cg := providers.NewCoinGecko(cfg.Providers[config.ProviderCoinGecko], s.deps)
	s.deepDive = deepdive.New(cg, s.cache, cfg.Cache.DeepDiveTTL()).WithObserver(s.metrics)
	return s, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "redis":
		r, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, appName+":")
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis cache")
		return r, nil
	default:
		return cache.NewMemory(cfg.MaxEntries), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	s.closers = nil
}
