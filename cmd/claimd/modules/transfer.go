package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/boot"
	"github.com/memohai/claimd/internal/config"
	"github.com/memohai/claimd/internal/metrics"
	"github.com/memohai/claimd/internal/transfer"
)

var TransferModule = fx.Module(
	"transfer",
	fx.Provide(
		provideTransferRegistry,
		provideDispatcher,
	),
)

// ---------------------------------------------------------------------------
// custodians
// ---------------------------------------------------------------------------

func provideTransferRegistry(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (*transfer.Registry, error) {
	c := cfg.Custodians
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case config.CustodianLedger:
		log.Warn("using in-process ledger custodians; transfers do not leave this process")
		return transfer.NewRegistry(transfer.NewLedger().Adapters()...)
	case "", config.CustodianHTTP:
	default:
		return nil, fmt.Errorf("unknown custodian mode %q", c.Mode)
	}

	endpoints := []struct {
		kind asset.Kind
		url  string
	}{
		{asset.KindNative, c.NativeURL},
		{asset.KindFungible, c.FTURL},
		{asset.KindNonFungible, c.NFTURL},
	}
	registry, err := transfer.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, ep := range endpoints {
		if strings.TrimSpace(ep.url) == "" {
			log.Warn("no custodian configured; transfers of this kind will fail", slog.String("token_type", ep.kind.String()))
			continue
		}
		custodian, err := transfer.NewHTTPCustodian(log, ep.kind, ep.url, c.APIKey, rc.CustodianTimeout)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(custodian); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func provideDispatcher(lc fx.Lifecycle, log *slog.Logger, registry *transfer.Registry, rc *boot.RuntimeConfig, m *metrics.Metrics) *transfer.Dispatcher {
	d := transfer.NewDispatcher(log, registry, rc.CustodianTimeout, m)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return waitFor(ctx, d.Wait)
		},
	})
	return d
}

// waitFor runs wait and gives up when ctx ends.
func waitFor(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
