// Package settlement is the escrow aggregate: it owns links, claims and the pending
// index, dispatches outbound transfers and reconciles their completions.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/metrics"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

// Policy constants.
const (
	DefaultClaimTTL  = 90 * 24 * time.Hour
	DefaultBatchSize = 100
)

// Memos attached to outbound transfers.
const (
	memoClaimed   = "Claimed tip from %s"
	memoReclaimed = "Reclaimed expired tip"
	memoForwarded = "Tip from %s"
)

// Dispatcher starts outbound transfers without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, req transfer.Request, cont *transfer.Continuation)
	OnComplete(fn transfer.CompletionFunc)
}

// ProofGateway verifies proofs asynchronously.
type ProofGateway interface {
	Submit(ctx context.Context, p proof.Proof, done func(error))
}

// Options configures a Coordinator.
type Options struct {
	Owner          string
	ClaimTTL       time.Duration
	BatchSize      int
	EnforceRecency bool
	ProofMaxAge    time.Duration
	Now            func() time.Time
}

// Coordinator serialises every top-level operation and continuation behind one mutex.
// The mutex is never held while a transfer or verification is running.
type Coordinator struct {
	store      storage.Store
	dispatcher Dispatcher
	gateway    ProofGateway
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	owner          string
	claimTTL       time.Duration
	batchSize      int
	enforceRecency bool
	proofMaxAge    time.Duration
	now            func() time.Time

	mu sync.Mutex
	// inFlight maps claim ids with an outstanding transfer to whether it is a reclaim.
	inFlight map[storage.ClaimID]bool
}

// New builds the aggregate over store. It fails with ErrAlreadyInitialized when the
// store was initialised by a different owner.
func New(ctx context.Context, log *slog.Logger, store storage.Store, dispatcher Dispatcher, gateway ProofGateway, publisher events.Publisher, m *metrics.Metrics, opts Options) (*Coordinator, error) {
	owner := strings.TrimSpace(opts.Owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner account is required", ErrInvalidRequest)
	}
	if store == nil || dispatcher == nil || gateway == nil {
		return nil, errors.New("settlement: store, dispatcher and gateway are required")
	}
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = DefaultClaimTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ProofMaxAge <= 0 {
		opts.ProofMaxAge = proof.MaxAge
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	if err := store.Init(ctx, owner); err != nil {
		return nil, err
	}

	c := &Coordinator{
		store:          store,
		dispatcher:     dispatcher,
		gateway:        gateway,
		publisher:      publisher,
		metrics:        m,
		logger:         log.With(slog.String("service", "settlement")),
		owner:          owner,
		claimTTL:       opts.ClaimTTL,
		batchSize:      opts.BatchSize,
		enforceRecency: opts.EnforceRecency,
		proofMaxAge:    opts.ProofMaxAge,
		now:            opts.Now,
		inFlight:       map[storage.ClaimID]bool{},
	}
	dispatcher.OnComplete(func(ctx context.Context, cont transfer.Continuation, result error) {
		if err := c.OnTransferComplete(ctx, cont, result); err != nil {
			c.logger.Warn("transfer completion not applied",
				slog.Uint64("claim_id", cont.ClaimID),
				slog.Any("error", err),
			)
		}
	})
	return c, nil
}

// Owner returns the administrative account.
func (c *Coordinator) Owner() string {
	return c.owner
}

func (c *Coordinator) checkPaused(ctx context.Context) error {
	paused, err := c.store.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func (c *Coordinator) checkOwner(caller string) error {
	if strings.TrimSpace(caller) != c.owner {
		return ErrUnauthorized
	}
	return nil
}

func (c *Coordinator) publish(n events.Notification) {
	c.publisher.Publish(n)
}
