package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/storage"
)

// LinkTicket tracks one link request while its proof is being verified.
type LinkTicket struct {
	ID        string
	Handle    handle.Handle
	Account   string
	Requested time.Time

	once sync.Once
	done chan struct{}
	err  error
}

func newLinkTicket(h handle.Handle, account string, now time.Time) *LinkTicket {
	return &LinkTicket{
		ID:        uuid.NewString(),
		Handle:    h,
		Account:   account,
		Requested: now,
		done:      make(chan struct{}),
	}
}

func (t *LinkTicket) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed once the link has been committed or rejected.
func (t *LinkTicket) Done() <-chan struct{} {
	return t.done
}

// Err returns the outcome; it is only meaningful after Done is closed.
func (t *LinkTicket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the outcome is known or ctx ends.
func (t *LinkTicket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestLink starts linking h to requester. The already-linked check runs now and again
// when the verdict arrives, so concurrent requests for one handle cannot overwrite each other.
func (c *Coordinator) RequestLink(ctx context.Context, h handle.Handle, p proof.Proof, requester string) (*LinkTicket, error) {
	requester = strings.TrimSpace(requester)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if requester == "" {
		return nil, fmt.Errorf("%w: requester is required", ErrInvalidRequest)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	now := c.now()
	err := c.precheckLink(ctx, h)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if c.enforceRecency && !p.IsRecent(now, c.proofMaxAge) {
		return nil, fmt.Errorf("%w: signed at %s", proof.ErrStale, p.Timestamp().Format(time.RFC3339))
	}

	ticket := newLinkTicket(h, requester, now)
	c.gateway.Submit(ctx, p, func(verr error) {
		ticket.resolve(c.completeLink(context.WithoutCancel(ctx), ticket, verr))
	})
	c.logger.Info("link requested",
		slog.String("ticket", ticket.ID),
		slog.String("handle", h.String()),
		slog.String("account", requester),
	)
	return ticket, nil
}

func (c *Coordinator) precheckLink(ctx context.Context, h handle.Handle) error {
	if err := c.checkPaused(ctx); err != nil {
		return err
	}
	_, linked, err := c.store.LinkedAccount(ctx, h)
	if err != nil {
		return err
	}
	if linked {
		return ErrAlreadyLinked
	}
	return nil
}

// completeLink is the continuation of RequestLink.
func (c *Coordinator) completeLink(ctx context.Context, t *LinkTicket, verr error) error {
	c.metrics.RecordVerification(time.Since(t.Requested), verr == nil)
	if verr != nil {
		c.logger.Warn("proof verification failed",
			slog.String("ticket", t.ID),
			slog.String("handle", t.Handle.String()),
			slog.Any("error", verr),
		)
		return fmt.Errorf("%w: %w", ErrVerification, verr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.LinkAccount(ctx, t.Handle, t.Account); err != nil {
		if errors.Is(err, storage.ErrAlreadyLinked) {
			c.logger.Warn("link lost race",
				slog.String("ticket", t.ID),
				slog.String("handle", t.Handle.String()),
			)
			return ErrAlreadyLinked
		}
		return err
	}
	c.metrics.RecordLink()
	c.publish(events.NewAccountLinked(t.Handle, t.Account))
	c.logger.Info("account linked",
		slog.String("handle", t.Handle.String()),
		slog.String("account", t.Account),
	)
	return nil
}
