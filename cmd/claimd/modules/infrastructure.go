// Package modules wires the claimd service graph with fx.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/config"
	"github.com/memohai/claimd/internal/db"
	"github.com/memohai/claimd/internal/logger"
	"github.com/memohai/claimd/internal/metrics"
	"github.com/memohai/claimd/internal/storage"
)

// ConfigPath is the resolved location of config.toml.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		boot.ProvideRuntimeConfig,
		provideLogger,
		provideRegistry,
		provideMetrics,
		provideStore,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.Init(cfg.Log.Level, cfg.Log.Format)
}

func provideRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func provideMetrics(registry *prometheus.Registry) *metrics.Metrics {
	return metrics.New(registry)
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", config.StorageMemory:
		log.Warn("using in-memory storage; state is lost on restart")
		return storage.NewMemory(), nil
	case config.StoragePostgres:
		pool, err := db.Open(context.Background(), cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return pool.Ping(ctx)
			},
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
		return storage.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
