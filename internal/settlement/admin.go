package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/storage"
)

// MaxPageSize caps every paginated read.
const MaxPageSize = 100

// Pause stops every state-changing operation except completions. Owner only.
func (c *Coordinator) Pause(ctx context.Context, caller string) error {
	return c.setPaused(ctx, caller, true)
}

// Unpause resumes normal operation. Owner only.
func (c *Coordinator) Unpause(ctx context.Context, caller string) error {
	return c.setPaused(ctx, caller, false)
}

func (c *Coordinator) setPaused(ctx context.Context, caller string, paused bool) error {
	if err := c.checkOwner(caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.store.Paused(ctx)
	if err != nil {
		return err
	}
	if current == paused {
		if paused {
			return ErrAlreadyPaused
		}
		return ErrNotPaused
	}
	if err := c.store.SetPaused(ctx, paused); err != nil {
		return err
	}
	if paused {
		c.logger.Warn("service paused by owner")
	} else {
		c.logger.Info("service unpaused by owner")
	}
	return nil
}

// Paused reports whether the service is paused.
func (c *Coordinator) Paused(ctx context.Context) (bool, error) {
	return c.store.Paused(ctx)
}

// RegisterToken adds or replaces an allow-listed custodian. Owner only.
func (c *Coordinator) RegisterToken(ctx context.Context, caller string, t storage.Token) error {
	if err := c.checkOwner(caller); err != nil {
		return err
	}
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidRequest)
	}
	switch t.Info.Standard {
	case storage.StandardNative, storage.StandardFungible, storage.StandardNonFungible:
	default:
		return fmt.Errorf("%w: unknown token standard %q", ErrInvalidRequest, t.Info.Standard)
	}
	if err := c.store.RegisterToken(ctx, t); err != nil {
		return err
	}
	c.logger.Info("token registered", slog.String("token_id", t.ID), slog.String("standard", string(t.Info.Standard)))
	return nil
}

// RemoveToken drops a custodian from the allow-list. Owner only.
func (c *Coordinator) RemoveToken(ctx context.Context, caller, id string) error {
	if err := c.checkOwner(caller); err != nil {
		return err
	}
	removed, err := c.store.RemoveToken(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", storage.ErrTokenNotFound, id)
	}
	c.logger.Info("token removed", slog.String("token_id", id))
	return nil
}

func (c *Coordinator) Token(ctx context.Context, id string) (storage.TokenInfo, bool, error) {
	return c.store.Token(ctx, id)
}

func (c *Coordinator) Tokens(ctx context.Context, from, limit int) ([]storage.Token, error) {
	return c.store.Tokens(ctx, from, clampLimit(limit))
}

func (c *Coordinator) LinkedAccount(ctx context.Context, h handle.Handle) (string, bool, error) {
	return c.store.LinkedAccount(ctx, h)
}

func (c *Coordinator) IsLinked(ctx context.Context, h handle.Handle) (bool, error) {
	_, ok, err := c.store.LinkedAccount(ctx, h)
	return ok, err
}

func (c *Coordinator) PendingCount(ctx context.Context, h handle.Handle) (int, error) {
	return c.store.PendingCount(ctx, h)
}

// PendingClaims pages through h's pending claims ordered by id.
func (c *Coordinator) PendingClaims(ctx context.Context, h handle.Handle, from, limit int) ([]storage.Claim, error) {
	return c.store.PendingClaims(ctx, h, from, clampLimit(limit))
}

func (c *Coordinator) Claim(ctx context.Context, id storage.ClaimID) (storage.Claim, bool, error) {
	return c.store.Claim(ctx, id)
}

func (c *Coordinator) ClaimsBySender(ctx context.Context, sender string, from, limit int) ([]storage.Claim, error) {
	return c.store.ClaimsBySender(ctx, strings.TrimSpace(sender), from, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
