package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/claimd/cmd/claimd/modules"
)

func serveCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, transfer dispatcher and expiry sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				fx.Supply(modules.ConfigPath(configPath())),
				modules.InfraModule,
				modules.TransferModule,
				modules.ProofModule,
				modules.DomainModule,
				modules.ServerModule,
				fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
					l := &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
					l.UseLogLevel(slog.LevelDebug)
					return l
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
