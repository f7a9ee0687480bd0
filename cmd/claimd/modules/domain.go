package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/config"
	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/metrics"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/sweep"
	"github.com/memohai/claimd/internal/transfer"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		events.NewHub,
		providePublisher,
		provideCoordinator,
		provideSweeper,
	),
	fx.Invoke(startSweeper),
)

// ---------------------------------------------------------------------------
// settlement
// ---------------------------------------------------------------------------

func providePublisher(log *slog.Logger, hub *events.Hub) events.Publisher {
	return events.Multi{events.NewLogPublisher(log), hub}
}

func provideCoordinator(log *slog.Logger, store storage.Store, dispatcher *transfer.Dispatcher, gateway *proof.Gateway, publisher events.Publisher, m *metrics.Metrics, cfg config.Config, rc *boot.RuntimeConfig) (*settlement.Coordinator, error) {
	return settlement.New(context.Background(), log, store, dispatcher, gateway, publisher, m, settlement.Options{
		Owner:          rc.Owner,
		ClaimTTL:       rc.ClaimTTL,
		BatchSize:      rc.BatchSize,
		EnforceRecency: cfg.Proof.EnforceRecency,
		ProofMaxAge:    rc.ProofMaxAge,
	})
}

func provideSweeper(log *slog.Logger, coordinator *settlement.Coordinator, cfg config.Config) (*sweep.Sweeper, error) {
	return sweep.New(log, coordinator, cfg.Sweep.Schedule, cfg.Sweep.Batch)
}

func startSweeper(lc fx.Lifecycle, sweeper *sweep.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sweeper.Stop(ctx)
		},
	})
}
