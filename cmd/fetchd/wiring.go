package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/application/services"
	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/connectivity"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/persistence/redis"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/transport"
	"github.com/DanielPopoola/fetchcache/internal/metrics"
)

type app struct {
	service *services.FetchService
	store   application.Store
	metrics *metrics.Metrics
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires the store, the transport chain and the service. The prober is
// passed in so serve can put the background monitor in front of it.
func newApp(
	ctx context.Context,
	cfg *config.Config,
	prober application.ConnectivityProber,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*app, error) {
	a := &app{metrics: m}

	store, err := newStore(ctx, cfg, a, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	var t application.Transport = transport.NewHTTPTransport(cfg.Client)
	t = transport.NewRetry(t, cfg.Retry, logger)
	t = transport.NewErrorMapping(t, prober)

	a.service = services.NewFetchService(t, store, prober, services.OptionsFromConfig(cfg.Client, m, logger))
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (application.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		store, err := memory.NewStore(cfg.Store.MemorySize, a.metrics.Evicted)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoreRedis:
		store, err := redis.Connect(ctx, cfg.Redis.RedisOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil

	case config.StorePostgres:
		db, err := postgres.Connect(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		store := postgres.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, errors.New("unknown store driver " + cfg.Store.Driver)
}

// newProber builds the raw connectivity probe for the configured mode.
func newProber(cfg config.ConnectivityConfig) application.ConnectivityProber {
	if cfg.Mode == config.ConnectivityDial {
		return connectivity.NewDialProber(cfg.ProbeAddress, cfg.ProbeTimeout)
	}
	return connectivity.NewStatic(true)
}
