package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/handlers"
	"github.com/memohai/claimd/internal/server"
	"github.com/memohai/claimd/internal/settlement"
	"github.com/memohai/claimd/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideClaimHandler),
		provideServerHandler(handlers.NewAdminHandler),
		provideServerHandler(handlers.NewEventsHandler),
		provideServerHandler(provideMetricsHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideClaimHandler(log *slog.Logger, coordinator *settlement.Coordinator, rc *boot.RuntimeConfig) *handlers.ClaimHandler {
	return handlers.NewClaimHandler(log, coordinator, rc.LinkWait)
}

func provideMetricsHandler(registry *prometheus.Registry) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(registry)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, coordinator *settlement.Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting claimd",
				slog.String("version", version.GetInfo()),
				slog.String("owner", coordinator.Owner()),
			)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
