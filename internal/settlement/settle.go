package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

// SettleReport lists what one Settle call did with each visited claim.
type SettleReport struct {
	Handle handle.Handle `json:"handle"`
	// Dispatched claims have a transfer in flight to the linked account.
	Dispatched []storage.ClaimID `json:"dispatched"`
	// Expired claims were pruned and are now only reachable through Reclaim.
	Expired []storage.ClaimID `json:"expired"`
	// Busy claims already had a transfer in flight and were left alone.
	Busy []storage.ClaimID `json:"busy"`
}

type dispatch struct {
	req  transfer.Request
	cont transfer.Continuation
}

// Settle dispatches transfers for up to one batch of h's pending claims to the linked
// account. caller must be that account. Expired claims are skipped and pruned.
func (c *Coordinator) Settle(ctx context.Context, h handle.Handle, caller string) (SettleReport, error) {
	if err := h.Validate(); err != nil {
		return SettleReport{}, err
	}
	c.mu.Lock()
	report, batch, err := c.settleLocked(ctx, h, strings.TrimSpace(caller))
	c.mu.Unlock()
	if err != nil {
		return SettleReport{}, err
	}
	for _, d := range batch {
		c.dispatcher.Dispatch(ctx, d.req, &d.cont)
	}
	if len(report.Dispatched) > 0 || len(report.Expired) > 0 {
		c.logger.Info("settle",
			slog.String("handle", h.String()),
			slog.Int("dispatched", len(report.Dispatched)),
			slog.Int("expired", len(report.Expired)),
			slog.Int("busy", len(report.Busy)),
		)
	}
	return report, nil
}

func (c *Coordinator) settleLocked(ctx context.Context, h handle.Handle, caller string) (SettleReport, []dispatch, error) {
	if err := c.checkPaused(ctx); err != nil {
		return SettleReport{}, nil, err
	}
	account, linked, err := c.store.LinkedAccount(ctx, h)
	if err != nil {
		return SettleReport{}, nil, err
	}
	if !linked {
		return SettleReport{}, nil, ErrNotLinked
	}
	if caller != account {
		return SettleReport{}, nil, ErrUnauthorized
	}
	// Over-fetch by the number of busy claims so they do not eat the batch.
	ids, err := c.store.PendingIDs(ctx, h, c.batchSize+len(c.inFlight))
	if err != nil {
		return SettleReport{}, nil, err
	}
	if len(ids) == 0 {
		return SettleReport{}, nil, ErrNoPendingClaims
	}

	report := SettleReport{
		Handle:     h,
		Dispatched: []storage.ClaimID{},
		Expired:    []storage.ClaimID{},
		Busy:       []storage.ClaimID{},
	}
	batch := make([]dispatch, 0, min(len(ids), c.batchSize))
	now := c.now()
	visited := 0
	for _, id := range ids {
		if visited >= c.batchSize {
			break
		}
		if _, busy := c.inFlight[id]; busy {
			report.Busy = append(report.Busy, id)
			continue
		}
		visited++
		claim, ok, err := c.store.Claim(ctx, id)
		if err != nil {
			return SettleReport{}, nil, err
		}
		if !ok || claim.Settled {
			// Stale index entry; drop it with the expired ones.
			report.Expired = append(report.Expired, id)
			continue
		}
		if claim.Expired(now) {
			report.Expired = append(report.Expired, id)
			continue
		}
		c.inFlight[id] = false
		report.Dispatched = append(report.Dispatched, id)
		batch = append(batch, dispatch{
			req: transfer.Request{
				Recipient: account,
				Asset:     claim.Asset,
				Memo:      fmt.Sprintf(memoClaimed, claim.Sender),
			},
			cont: transfer.Continuation{
				Handle:    h,
				Kind:      claim.Asset.Kind(),
				ClaimID:   uint64(id),
				Recipient: account,
			},
		})
	}

	if len(report.Expired) > 0 {
		removed, err := c.store.Prune(ctx, h, report.Expired...)
		if err != nil {
			for _, d := range batch {
				delete(c.inFlight, storage.ClaimID(d.cont.ClaimID))
			}
			return SettleReport{}, nil, err
		}
		c.metrics.RecordExpired(removed)
	}
	return report, batch, nil
}

// Reclaim returns an expired, unsettled claim to its sender. caller must be the sender.
func (c *Coordinator) Reclaim(ctx context.Context, h handle.Handle, id storage.ClaimID, caller string) error {
	caller = strings.TrimSpace(caller)
	c.mu.Lock()
	d, err := c.reclaimLocked(ctx, h, id, caller)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.dispatcher.Dispatch(ctx, d.req, &d.cont)
	c.logger.Info("reclaim dispatched",
		slog.Uint64("claim_id", uint64(id)),
		slog.String("sender", caller),
	)
	return nil
}

func (c *Coordinator) reclaimLocked(ctx context.Context, h handle.Handle, id storage.ClaimID, caller string) (dispatch, error) {
	if err := c.checkPaused(ctx); err != nil {
		return dispatch{}, err
	}
	claim, ok, err := c.store.Claim(ctx, id)
	if err != nil {
		return dispatch{}, err
	}
	if !ok || (h.Validate() == nil && claim.Handle.Key() != h.Key()) {
		return dispatch{}, ErrClaimNotFound
	}
	if claim.Settled {
		return dispatch{}, ErrAlreadySettled
	}
	if claim.Reclaimed {
		return dispatch{}, ErrAlreadyReclaimed
	}
	if !claim.Expired(c.now()) {
		return dispatch{}, ErrNotExpired
	}
	if caller != claim.Sender {
		return dispatch{}, ErrUnauthorized
	}
	if _, busy := c.inFlight[id]; busy {
		return dispatch{}, ErrTransferInFlight
	}
	c.inFlight[id] = true
	return dispatch{
		req: transfer.Request{
			Recipient: caller,
			Asset:     claim.Asset,
			Memo:      memoReclaimed,
		},
		cont: transfer.Continuation{
			Handle:    claim.Handle,
			Kind:      claim.Asset.Kind(),
			ClaimID:   uint64(id),
			Recipient: caller,
			Reclaim:   true,
		},
	}, nil
}

// OnTransferComplete reconciles the outcome of a tracked transfer. It is safe to call
// more than once for the same claim: only the first success changes anything.
func (c *Coordinator) OnTransferComplete(ctx context.Context, cont transfer.Continuation, result error) error {
	id := storage.ClaimID(cont.ClaimID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if reclaim, busy := c.inFlight[id]; busy && reclaim == cont.Reclaim {
		delete(c.inFlight, id)
	}

	if result != nil {
		op := "claim"
		if cont.Reclaim {
			op = "reclaim"
		}
		c.logger.Warn("transfer failed",
			slog.String("op", op),
			slog.String("token_type", cont.Kind.String()),
			slog.Uint64("claim_id", cont.ClaimID),
			slog.String("handle", cont.Handle.String()),
			slog.String("recipient", cont.Recipient),
			slog.Any("error", result),
		)
		return nil
	}

	claim, ok, err := c.store.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimNotFound
	}
	if cont.Reclaim {
		return c.completeReclaim(ctx, claim, cont)
	}
	return c.completeSettle(ctx, claim, cont)
}

func (c *Coordinator) completeSettle(ctx context.Context, claim storage.Claim, cont transfer.Continuation) error {
	if claim.Settled {
		return nil
	}
	account, linked, err := c.store.LinkedAccount(ctx, claim.Handle)
	if err != nil {
		return err
	}
	if !linked || account != cont.Recipient {
		return fmt.Errorf("%w: claim %d recipient %s", ErrStaleContinuation, claim.ID, cont.Recipient)
	}
	changed, err := c.store.MarkSettled(ctx, claim.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := c.store.Prune(ctx, claim.Handle, claim.ID); err != nil {
		return err
	}
	c.publish(events.NewClaimProcessed(claim.Handle, claim.Asset, cont.Recipient))
	c.logAllProcessed(ctx, claim.Handle)
	return nil
}

func (c *Coordinator) completeReclaim(ctx context.Context, claim storage.Claim, cont transfer.Continuation) error {
	if cont.Recipient != claim.Sender {
		return fmt.Errorf("%w: claim %d reclaimer %s", ErrStaleContinuation, claim.ID, cont.Recipient)
	}
	if claim.Settled {
		c.logger.Error("reclaim completed for a settled claim", slog.Uint64("claim_id", uint64(claim.ID)))
		return nil
	}
	changed, err := c.store.MarkReclaimed(ctx, claim.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := c.store.Prune(ctx, claim.Handle, claim.ID); err != nil {
		return err
	}
	c.publish(events.NewTipReclaimed(claim.Handle, claim.Asset, cont.Recipient))
	c.logAllProcessed(ctx, claim.Handle)
	return nil
}

func (c *Coordinator) logAllProcessed(ctx context.Context, h handle.Handle) {
	if n, err := c.store.PendingCount(ctx, h); err == nil && n == 0 {
		c.logger.Info("all claims processed", slog.String("handle", h.String()))
	}
}

// SweepExpired prunes up to limit expired claim ids from pending buckets. Claims with a
// transfer in flight are left for their completion. Returns the number pruned.
func (c *Coordinator) SweepExpired(ctx context.Context, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	refs, err := c.store.ExpiredPending(ctx, c.now(), limit)
	if err != nil {
		return 0, err
	}
	byHandle := map[string][]storage.ClaimID{}
	handles := map[string]handle.Handle{}
	for _, ref := range refs {
		if _, busy := c.inFlight[ref.ClaimID]; busy {
			continue
		}
		key := ref.Handle.Key()
		handles[key] = ref.Handle
		byHandle[key] = append(byHandle[key], ref.ClaimID)
	}
	total := 0
	for key, ids := range byHandle {
		removed, err := c.store.Prune(ctx, handles[key], ids...)
		if err != nil {
			return total, err
		}
		total += removed
	}
	c.metrics.RecordExpired(total)
	return total, nil
}
