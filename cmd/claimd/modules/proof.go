package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/config"
	"github.com/memohai/claimd/internal/proof"
)

var ProofModule = fx.Module(
	"proof",
	fx.Provide(
		provideVerifier,
		provideGateway,
	),
)

func provideVerifier(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (proof.Verifier, error) {
	if cfg.Proof.AcceptAll {
		log.Warn("proof verification disabled; every link request is accepted")
		return proof.AcceptAll, nil
	}
	v, err := proof.NewHTTPVerifier(log, cfg.Proof.VerifierURL, cfg.Proof.APIKey, rc.ProofTimeout)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func provideGateway(lc fx.Lifecycle, log *slog.Logger, verifier proof.Verifier, cfg config.Config, rc *boot.RuntimeConfig) *proof.Gateway {
	g := proof.NewGateway(log, verifier, proof.GatewayOptions{
		Timeout: rc.ProofTimeout,
		Rate:    cfg.Proof.Rate,
		Burst:   cfg.Proof.Burst,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return waitFor(ctx, g.Wait)
		},
	})
	return g
}
