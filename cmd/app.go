package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
	"recruit-pipeline/infrastructure"
	"recruit-pipeline/usecase"
)

// components holds everything a command may need, plus the closers to release them.
type components struct {
	store      domain.Store
	stages     *usecase.StageEngine
	activity   *usecase.ActivityLog
	scorecards *usecase.ScorecardAggregator
	placements *usecase.PlacementLedger
	hub        *infrastructure.Hub
	rabbit     *infrastructure.RabbitMQ
	closers    []func() error
}

func (c *components) Close(logger *zap.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn("closing component failed", zap.Error(err))
		}
	}
}

// publisher is the broker when RabbitMQ is enabled, otherwise the in-process hub.
func (c *components) publisher() infrastructure.EventPublisher {
	if c.rabbit != nil {
		return c.rabbit
	}
	return c.hub
}

var openStore = infrastructure.NewStore

// build releases whatever it already opened when a later component fails.
func build(ctx context.Context, cfg *infrastructure.Config, logger *zap.Logger) (*components, error) {
	c := &components{hub: infrastructure.NewHub(logger.Named("ws"))}

	store, err := openStore(cfg.Database, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	c.store = store
	if closer, ok := store.(io.Closer); ok {
		c.closers = append(c.closers, closer.Close)
	}

	var cache usecase.ReadModelCache = usecase.NoCache{}
	if cfg.Redis.Enabled {
		rc, err := infrastructure.NewRedisCache(cfg.Redis)
		if err != nil {
			c.Close(logger)
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			c.Close(logger)
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		c.closers = append(c.closers, rc.Close)
		cache = rc
		logger.Info("read model cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}

	if cfg.RabbitMQ.Enabled {
		rmq, err := infrastructure.NewRabbitMQ(cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err != nil {
			c.Close(logger)
			return nil, err
		}
		c.closers = append(c.closers, rmq.Close)
		c.rabbit = rmq
	}

	opts := []usecase.Option{
		usecase.WithLogger(logger.Named("pipeline")),
		usecase.WithCache(cache),
		usecase.WithTimeout(cfg.Pipeline.OperationTimeout),
		usecase.WithStrictTransitions(cfg.Pipeline.StrictTransitions),
		usecase.WithStaleRetries(cfg.Pipeline.StaleRetries),
		usecase.WithDefaultGuaranteeDays(cfg.Placement.DefaultGuaranteeDays),
	}
	c.stages = usecase.NewStageEngine(store, opts...)
	c.activity = usecase.NewActivityLog(store, opts...)
	c.scorecards = usecase.NewScorecardAggregator(store, opts...)
	c.placements = usecase.NewPlacementLedger(store, opts...)
	return c, nil
}
