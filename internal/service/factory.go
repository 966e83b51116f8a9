package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"esco-optimizer/db/clickhouse"
	"esco-optimizer/db/postgres"
	"esco-optimizer/decision/policy"
	"esco-optimizer/decision/scoring"
	"esco-optimizer/internal/config"
	"esco-optimizer/source"
	"esco-optimizer/source/cache"
	"esco-optimizer/source/file"
	"esco-optimizer/source/ptc"
	"esco-optimizer/source/s3"
)

// Closer releases resources held by a source.
type Closer func()

// NewSource builds the configured offer source, wrapped in a cache when
// enabled.
func NewSource(ctx context.Context, cfg *config.Config) (source.Source, Closer, error) {
	var (
		src     source.Source
		closers []func() error
	)

	switch cfg.Source.Kind {
	case config.SourcePTC:
		src = ptc.NewClient(cfg.Source.PTC)
	case config.SourceFile:
		src = file.New(cfg.Source.File.Path)
	case config.SourceS3:
		s, err := s3.New(ctx, cfg.Source.S3)
		if err != nil {
			return nil, nil, err
		}
		src = s
	case config.SourceClickHouse:
		chCfg := cfg.Source.ClickHouse
		store, err := clickhouse.NewStore(&chCfg)
		if err != nil {
			return nil, nil, err
		}
		src = store
		closers = append(closers, store.Close)
	case config.SourcePostgres:
		db, err := postgres.Open(cfg.Source.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		store := postgres.NewStore(db)
		src = store
		closers = append(closers, store.Close)
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if cfg.Cache.Enabled {
		var c cache.Cache
		switch cfg.Cache.Backend {
		case config.CacheRedis:
			client, err := cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
			if err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			rc := cache.NewRedisCache(client)
			c = rc
			closers = append(closers, rc.Close)
		default:
			c = cache.NewMemoryCache()
		}
		src = cache.Wrap(src, c, cfg.Cache.TTL)
	}

	log.Debug().Str("source", src.Name()).Bool("cache", cfg.Cache.Enabled).Msg("Offer source ready")
	return src, func() { closeAll(closers) }, nil
}

func closeAll(closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// NewReview builds the policy engine from configuration.
func NewReview(cfg *config.Config) (*policy.Engine, error) {
	engine := policy.NewEngine()
	if cfg.Policy.MaxMonthlyCost > 0 {
		engine.AddPolicy(policy.MaxMonthlyCost(cfg.Policy.MaxMonthlyCost))
	}
	if cfg.Policy.Dir != "" {
		r, err := policy.LoadRegoDir(cfg.Policy.Dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dir", cfg.Policy.Dir).Int("policies", r.Len()).Msg("Loaded rego policies")
		engine.WithRego(r)
	}
	return engine, nil
}

// New builds an optimizer from configuration.
func New(ctx context.Context, cfg *config.Config) (*Optimizer, Closer, error) {
	src, closer, err := NewSource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	review, err := NewReview(cfg)
	if err != nil {
		closer()
		return nil, nil, err
	}

	scorer := scoring.NewEngine().WithLogger(log.Logger)
	if cfg.Scoring.Parallelism > 0 {
		scorer.WithParallelism(cfg.Scoring.Parallelism)
	}

	opt := NewOptimizer(src).
		WithSegment(cfg.Segment).
		WithScorer(scorer).
		WithReview(review).
		WithTopK(cfg.Scoring.TopK)
	return opt, closer, nil
}
