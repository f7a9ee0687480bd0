package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

// Deposit describes what happened to an incoming asset. The service keeps custody of
// every deposit, so nothing is ever refunded at the notification boundary.
type Deposit struct {
	Handle handle.Handle `json:"handle"`
	// Recipient is set when the asset was forwarded to a linked account.
	Recipient string `json:"recipient,omitempty"`
	// Claim is set when the asset was escrowed for an unlinked handle.
	Claim *storage.Claim `json:"claim,omitempty"`
}

// Forwarded reports whether the deposit went straight to a linked account.
func (d Deposit) Forwarded() bool {
	return d.Recipient != ""
}

// OnNativeDeposit handles the native-ledger custodian reporting that sender deposited
// amount, routed to the handle named in msg.
func (c *Coordinator) OnNativeDeposit(ctx context.Context, custodian, sender string, amount sdkmath.Int, msg string) (Deposit, error) {
	h, err := handle.ParseRouting(msg)
	if err != nil {
		return Deposit{}, err
	}
	a := asset.NewNative(amount)
	if err := asset.Validate(a); err != nil {
		return Deposit{}, err
	}
	return c.deposit(ctx, strings.TrimSpace(sender), h, a, intake{custodian: strings.TrimSpace(custodian), standard: storage.StandardNative})
}

// OnFungibleDeposit handles a fungible-token custodian reporting that sender deposited
// amount, routed to the handle named in msg.
func (c *Coordinator) OnFungibleDeposit(ctx context.Context, custodian, sender string, amount sdkmath.Int, msg string) (Deposit, error) {
	h, err := handle.ParseRouting(msg)
	if err != nil {
		return Deposit{}, err
	}
	a := asset.NewFungible(custodian, amount)
	if err := asset.Validate(a); err != nil {
		return Deposit{}, err
	}
	return c.deposit(ctx, strings.TrimSpace(sender), h, a, intake{custodian: a.Contract, standard: storage.StandardFungible})
}

// OnNonFungibleDeposit handles a non-fungible-token custodian reporting that sender
// transferred tokenID. previousOwner is informational only; sender is the tipper.
func (c *Coordinator) OnNonFungibleDeposit(ctx context.Context, custodian, sender, previousOwner, tokenID, msg string) (Deposit, error) {
	h, err := handle.ParseRouting(msg)
	if err != nil {
		return Deposit{}, err
	}
	a := asset.NewNonFungible(custodian, tokenID)
	if err := asset.Validate(a); err != nil {
		return Deposit{}, err
	}
	if previousOwner = strings.TrimSpace(previousOwner); previousOwner != "" {
		c.logger.Debug("nft deposit",
			slog.String("sender", sender),
			slog.String("previous_owner", previousOwner),
		)
	}
	return c.deposit(ctx, strings.TrimSpace(sender), h, a, intake{custodian: a.Contract, standard: storage.StandardNonFungible})
}

// intake names the custodian reporting a deposit and the standard it must be registered with.
type intake struct {
	custodian string
	standard  storage.TokenStandard
}

// deposit forwards a to the linked account of h or escrows it. The reporting custodian
// must be allow-listed under the standard of a.
func (c *Coordinator) deposit(ctx context.Context, sender string, h handle.Handle, a asset.Asset, in intake) (Deposit, error) {
	if sender == "" {
		return Deposit{}, fmt.Errorf("%w: sender is required", ErrInvalidRequest)
	}

	c.mu.Lock()
	result, forward, err := c.depositLocked(ctx, sender, h, a, in)
	c.mu.Unlock()
	if err != nil {
		return Deposit{}, err
	}
	if forward != nil {
		c.dispatcher.Dispatch(ctx, *forward, nil)
	}
	return result, nil
}

func (c *Coordinator) depositLocked(ctx context.Context, sender string, h handle.Handle, a asset.Asset, in intake) (Deposit, *transfer.Request, error) {
	if err := c.checkPaused(ctx); err != nil {
		return Deposit{}, nil, err
	}
	if in.custodian == "" {
		return Deposit{}, nil, fmt.Errorf("%w: custodian is required", ErrUnsupportedAsset)
	}
	info, ok, err := c.store.Token(ctx, in.custodian)
	if err != nil {
		return Deposit{}, nil, err
	}
	if !ok {
		return Deposit{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, in.custodian)
	}
	if info.Standard != in.standard {
		return Deposit{}, nil, fmt.Errorf("%w: %s is registered as %s, not %s", ErrUnsupportedAsset, in.custodian, info.Standard, in.standard)
	}

	account, linked, err := c.store.LinkedAccount(ctx, h)
	if err != nil {
		return Deposit{}, nil, err
	}
	if linked {
		c.publish(events.NewTipTransferred(h, a, account))
		c.metrics.RecordForward(a.Kind().String())
		c.logger.Info("tip forwarded",
			slog.String("handle", h.String()),
			slog.String("recipient", account),
			slog.String("asset", a.Label()),
		)
		req := transfer.Request{
			Recipient: account,
			Asset:     a,
			Memo:      fmt.Sprintf(memoForwarded, sender),
		}
		return Deposit{Handle: h, Recipient: account}, &req, nil
	}

	now := c.now()
	claim, err := c.store.CreateClaim(ctx, storage.NewClaim{
		Handle:    h,
		Asset:     a,
		Sender:    sender,
		CreatedAt: now,
		ExpiresAt: now.Add(c.claimTTL),
	})
	if err != nil {
		return Deposit{}, nil, err
	}
	c.publish(events.NewClaimCreated(h, a, sender))
	c.metrics.RecordClaimCreated(a.Kind().String())
	c.logger.Info("claim created",
		slog.Uint64("claim_id", uint64(claim.ID)),
		slog.String("handle", h.String()),
		slog.String("asset", a.Label()),
	)
	return Deposit{Handle: h, Claim: &claim}, nil, nil
}
