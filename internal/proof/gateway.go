package proof

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gateway runs verifications asynchronously under a rate limit and a per-call timeout.
type Gateway struct {
	verifier Verifier
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// GatewayOptions bounds the work done per verification.
type GatewayOptions struct {
	Timeout time.Duration
	// Rate is verifications per second; zero means unlimited.
	Rate  float64
	Burst int
}

func NewGateway(log *slog.Logger, verifier Verifier, opts GatewayOptions) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Gateway{
		verifier: verifier,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		timeout:  opts.Timeout,
		logger:   log.With(slog.String("service", "proof_gateway")),
	}
}

// Submit verifies p on a new goroutine and hands the verdict to done.
// The verification outlives ctx cancellation but not the gateway timeout.
func (g *Gateway) Submit(ctx context.Context, p Proof, done func(error)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		done(g.verify(context.WithoutCancel(ctx), p))
	}()
}

// Verify runs one verification synchronously under the same budget as Submit.
func (g *Gateway) Verify(ctx context.Context, p Proof) error {
	return g.verify(ctx, p)
}

func (g *Gateway) verify(ctx context.Context, p Proof) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limited: %v", ErrVerifierFailed, err)
	}
	start := time.Now()
	err := g.verifier.Verify(ctx, p)
	g.logger.Debug("proof verified",
		slog.String("platform", p.Platform()),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil),
	)
	return err
}

// Wait blocks until every submitted verification has delivered its verdict.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
