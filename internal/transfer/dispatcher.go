package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memohai/claimd/internal/metrics"
)

// CompletionFunc receives the outcome of a tracked transfer.
type CompletionFunc func(ctx context.Context, c Continuation, result error)

// Dispatcher runs each transfer on its own goroutine so callers never block on a custodian.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	complete CompletionFunc
	wg       sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, registry *Registry, timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		logger:   log.With(slog.String("service", "transfer_dispatcher")),
		metrics:  m,
	}
}

// OnComplete installs the callback that receives tracked outcomes.
func (d *Dispatcher) OnComplete(fn CompletionFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.complete = fn
}

// Dispatch starts req. With a nil continuation the transfer is fire-and-forget and a
// failure is only logged; otherwise the outcome goes to the completion callback.
// A transfer whose outcome is unknown is never reported: its claim stays in flight
// until the result is posted through the completion endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, cont *Continuation) {
	kind := ""
	if req.Asset != nil {
		kind = req.Asset.Kind().String()
	}
	d.metrics.RecordDispatch(kind)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		base := context.WithoutCancel(ctx)
		start := time.Now()
		err := req.Validate()
		if err == nil {
			err = d.transfer(base, req)
		}
		d.metrics.RecordCompletion(kind, time.Since(start), err == nil)

		if cont == nil {
			if err != nil {
				d.logger.Warn("untracked transfer failed",
					slog.String("recipient", req.Recipient),
					slog.String("kind", kind),
					slog.Any("error", err),
				)
			}
			return
		}

		if errors.Is(err, ErrOutcomeUnknown) {
			raw, _ := cont.Encode()
			d.logger.Warn("transfer outcome unknown, awaiting completion report",
				slog.Uint64("claim_id", cont.ClaimID),
				slog.String("recipient", cont.Recipient),
				slog.String("continuation", raw),
				slog.Any("error", err),
			)
			return
		}

		d.mu.RLock()
		complete := d.complete
		d.mu.RUnlock()
		if complete == nil {
			d.logger.Error("transfer completed with no completion handler",
				slog.Uint64("claim_id", cont.ClaimID),
				slog.Any("error", err),
			)
			return
		}
		complete(base, *cont, err)
	}()
}

func (d *Dispatcher) transfer(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.registry.Transfer(ctx, req)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrOutcomeUnknown) {
		return fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
	}
	return err
}

// Wait blocks until every dispatched transfer has finished and reported.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
