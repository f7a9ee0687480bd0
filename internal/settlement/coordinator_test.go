package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

var ctx = context.Background()

func TestNewRejectsDoubleInitialization(t *testing.T) {
	store := storage.NewMemory()
	d := &manualDispatcher{}
	g := &manualGateway{}
	_, err := New(ctx, nil, store, d, g, nil, nil, Options{Owner: owner})
	require.NoError(t, err)

	_, err = New(ctx, nil, store, d, g, nil, nil, Options{Owner: owner})
	require.NoError(t, err, "restart with the same owner")

	_, err = New(ctx, nil, store, d, g, nil, nil, Options{Owner: "mallory.near"})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, CategoryState, CategoryOf(err))

	_, err = New(ctx, nil, store, d, g, nil, nil, Options{})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

// Deposit to an unlinked handle, link, settle: the owner receives the value.
func TestScenarioNativeTipSettlesAfterLinking(t *testing.T) {
	store := storage.NewMemory()
	ledger := transfer.NewLedger()
	registry, err := transfer.NewRegistry(ledger.Adapters()...)
	require.NoError(t, err)
	dispatcher := transfer.NewDispatcher(slog.New(slog.DiscardHandler), registry, time.Second, nil)
	gateway := proof.NewGateway(nil, proof.AcceptAll, proof.GatewayOptions{Timeout: time.Second})
	rec := &events.Recorder{}
	c, err := New(ctx, nil, store, dispatcher, gateway, rec, nil, Options{Owner: owner})
	require.NoError(t, err)
	require.NoError(t, c.RegisterToken(ctx, owner, storage.Token{
		ID:   nativeCustodian,
		Info: storage.TokenInfo{Standard: storage.StandardNative, Decimals: 24, Symbol: "NEAR"},
	}))

	alice := handle.New("Twitter", "Alice")
	deposit, err := c.OnNativeDeposit(ctx, nativeCustodian, "tipper.near", sdkmath.NewInt(1), routing(t, alice))
	require.NoError(t, err)
	require.False(t, deposit.Forwarded())
	require.NotNil(t, deposit.Claim)

	n, err := c.PendingCount(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ticket, err := c.RequestLink(ctx, alice, freshProof(time.Now()), "alice.near")
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(ctx))
	linked, err := c.IsLinked(ctx, handle.New("twitter", "alice"))
	require.NoError(t, err)
	require.True(t, linked)

	report, err := c.Settle(ctx, alice, "alice.near")
	require.NoError(t, err)
	require.Equal(t, []storage.ClaimID{deposit.Claim.ID}, report.Dispatched)
	dispatcher.Wait()

	n, err = c.PendingCount(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, ledger.Balance("alice.near", "").Equal(sdkmath.NewInt(1)))

	claim, ok, err := c.Claim(ctx, deposit.Claim.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, claim.Settled)

	require.Equal(t, 1, rec.Count(events.ClaimCreated))
	require.Equal(t, 1, rec.Count(events.AccountLinked))
	require.Equal(t, 1, rec.Count(events.ClaimProcessed))

	history := ledger.History()
	require.Len(t, history, 1)
	require.Equal(t, "Claimed tip from tipper.near", history[0].Memo)
}

// A deposit to a linked handle is forwarded in the same invocation with no claim.
func TestScenarioLinkedDepositForwards(t *testing.T) {
	h := newHarness(t)
	bob := handle.New("github", "bob")
	h.link(t, bob, "bob.near")
	h.registerToken(t, "usdc.near", storage.StandardFungible)

	deposit, err := h.c.OnFungibleDeposit(ctx, "usdc.near", "tipper.near", sdkmath.NewInt(500), `{"platform":"GitHub","handle":"Bob"}`)
	require.NoError(t, err)
	require.True(t, deposit.Forwarded())
	require.Equal(t, "bob.near", deposit.Recipient)
	require.Nil(t, deposit.Claim)

	require.Zero(t, h.pending(t, bob))
	claims, err := h.c.ClaimsBySender(ctx, "tipper.near", 0, 10)
	require.NoError(t, err)
	require.Empty(t, claims)

	sent := h.dispatcher.Untracked()
	require.Len(t, sent, 1)
	require.Equal(t, "bob.near", sent[0].Recipient)
	require.Equal(t, "Tip from tipper.near", sent[0].Memo)
	require.Equal(t, asset.KindFungible, sent[0].Asset.Kind())
	require.Empty(t, h.dispatcher.Tracked())
	require.Equal(t, 1, h.events.Count(events.TipTransferred))
}

// slowCustodian moves the value but answers only after the dispatcher gave up.
type slowCustodian struct {
	moves atomic.Int32
}

func (s *slowCustodian) Kind() asset.Kind { return asset.KindNative }

func (s *slowCustodian) Transfer(ctx context.Context, _ transfer.Request) error {
	<-ctx.Done()
	s.moves.Add(1)
	return ctx.Err()
}

// A transfer that times out keeps its claim in flight until the outcome is reported.
func TestScenarioSlowCustodianIsNotPaidTwice(t *testing.T) {
	custodian := &slowCustodian{}
	registry, err := transfer.NewRegistry(custodian)
	require.NoError(t, err)
	dispatcher := transfer.NewDispatcher(slog.New(slog.DiscardHandler), registry, 20*time.Millisecond, nil)
	gateway := proof.NewGateway(nil, proof.AcceptAll, proof.GatewayOptions{Timeout: time.Second})
	c, err := New(ctx, nil, storage.NewMemory(), dispatcher, gateway, nil, nil, Options{Owner: owner})
	require.NoError(t, err)
	require.NoError(t, c.RegisterToken(ctx, owner, storage.Token{
		ID:   nativeCustodian,
		Info: storage.TokenInfo{Standard: storage.StandardNative, Decimals: 24, Symbol: "NEAR"},
	}))

	lou := handle.New("twitter", "lou")
	deposit, err := c.OnNativeDeposit(ctx, nativeCustodian, "tipper.near", sdkmath.NewInt(7), routing(t, lou))
	require.NoError(t, err)
	id := deposit.Claim.ID
	ticket, err := c.RequestLink(ctx, lou, freshProof(time.Now()), "lou.near")
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(ctx))

	report, err := c.Settle(ctx, lou, "lou.near")
	require.NoError(t, err)
	require.Equal(t, []storage.ClaimID{id}, report.Dispatched)
	dispatcher.Wait()

	report, err = c.Settle(ctx, lou, "lou.near")
	require.NoError(t, err)
	require.Empty(t, report.Dispatched)
	require.Equal(t, []storage.ClaimID{id}, report.Busy)
	dispatcher.Wait()
	require.EqualValues(t, 1, custodian.moves.Load())

	n, err := c.PendingCount(ctx, lou)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cont := transfer.Continuation{Handle: lou, Kind: asset.KindNative, ClaimID: uint64(id), Recipient: "lou.near"}
	require.NoError(t, c.OnTransferComplete(ctx, cont, nil))
	claim, _, err := c.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claim.Settled)
	_, err = c.Settle(ctx, lou, "lou.near")
	require.ErrorIs(t, err, ErrNoPendingClaims)
}

// An expired claim is skipped by settle and reclaimable exactly once by its sender.
func TestScenarioExpiredClaimIsReclaimedOnce(t *testing.T) {
	h := newHarness(t)
	carol := handle.New("twitter", "carol")
	h.registerToken(t, "art.near", storage.StandardNonFungible)

	deposit, err := h.c.OnNonFungibleDeposit(ctx, "art.near", "collector.near", "market.near", "token-9", `{"platform":"twitter","handle":"carol"}`)
	require.NoError(t, err)
	id := deposit.Claim.ID
	require.Equal(t, "collector.near", deposit.Claim.Sender)

	require.ErrorIs(t, h.c.Reclaim(ctx, carol, id, "collector.near"), ErrNotExpired)

	h.clock.Advance(DefaultClaimTTL)
	h.link(t, carol, "carol.near")

	report, err := h.c.Settle(ctx, carol, "carol.near")
	require.NoError(t, err)
	require.Empty(t, report.Dispatched)
	require.Equal(t, []storage.ClaimID{id}, report.Expired)
	require.Empty(t, h.dispatcher.Tracked())
	require.Zero(t, h.pending(t, carol))

	require.ErrorIs(t, h.c.Reclaim(ctx, carol, id, "carol.near"), ErrUnauthorized)
	require.ErrorIs(t, h.c.Reclaim(ctx, carol, id, "market.near"), ErrUnauthorized)
	require.NoError(t, h.c.Reclaim(ctx, carol, id, "collector.near"))
	require.ErrorIs(t, h.c.Reclaim(ctx, carol, id, "collector.near"), ErrTransferInFlight)

	tracked := h.dispatcher.Tracked()
	require.Len(t, tracked, 1)
	require.True(t, tracked[0].Reclaim)
	require.Equal(t, "collector.near", tracked[0].Recipient)
	require.Equal(t, "Reclaimed expired tip", h.dispatcher.Requests()[len(h.dispatcher.Requests())-1].Memo)

	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[0], nil))
	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[0], nil))
	require.Equal(t, 1, h.events.Count(events.TipReclaimed))

	require.ErrorIs(t, h.c.Reclaim(ctx, carol, id, "collector.near"), ErrAlreadyReclaimed)
	claim, _, err := h.c.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claim.Reclaimed)
	require.False(t, claim.Settled)
}

// A deposit from a custodian that is not allow-listed is rejected without a claim.
func TestScenarioUnlistedCustodianRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.OnFungibleDeposit(ctx, "scam.near", "tipper.near", sdkmath.NewInt(5), `{"platform":"twitter","handle":"dave"}`)
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.Equal(t, CategoryResource, CategoryOf(err))
	require.Zero(t, h.pending(t, handle.New("twitter", "dave")))
	claims, err := h.c.ClaimsBySender(ctx, "tipper.near", 0, 10)
	require.NoError(t, err)
	require.Empty(t, claims)
	require.Zero(t, h.events.Count(events.ClaimCreated))
}

// Native value is only accepted when the native-ledger custodian reports it.
func TestScenarioNativeDepositRequiresNativeCustodian(t *testing.T) {
	h := newHarness(t)
	mallory := handle.New("twitter", "mallory")
	h.link(t, mallory, "mallory.near")
	h.registerToken(t, "usdc.near", storage.StandardFungible)

	tests := []struct {
		name      string
		custodian string
	}{
		{"caller is not a custodian", "mallory.near"},
		{"no custodian", " "},
		{"fungible custodian", "usdc.near"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.c.OnNativeDeposit(ctx, tt.custodian, "mallory.near", sdkmath.NewInt(1_000_000), routing(t, mallory))
			require.ErrorIs(t, err, ErrUnsupportedAsset)
			require.Equal(t, CategoryResource, CategoryOf(err))
		})
	}
	require.Empty(t, h.dispatcher.Requests())
	require.Zero(t, h.events.Count(events.TipTransferred))

	d, err := h.tip(t, "alice.near", mallory, sdkmath.NewInt(3))
	require.NoError(t, err)
	require.True(t, d.Forwarded())
	sent := h.dispatcher.Untracked()
	require.Len(t, sent, 1)
	require.Equal(t, "Tip from alice.near", sent[0].Memo)
}

// Custodians may only report deposits of the standard they were allow-listed under.
func TestDepositRequiresMatchingStandard(t *testing.T) {
	h := newHarness(t)
	h.registerToken(t, "usdc.near", storage.StandardFungible)
	h.registerToken(t, "art.near", storage.StandardNonFungible)
	msg := `{"platform":"twitter","handle":"erin"}`

	_, err := h.c.OnFungibleDeposit(ctx, "art.near", "a.near", sdkmath.NewInt(5), msg)
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	_, err = h.c.OnNonFungibleDeposit(ctx, "usdc.near", "a.near", "", "token-1", msg)
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.Zero(t, h.pending(t, handle.New("twitter", "erin")))

	_, err = h.c.OnFungibleDeposit(ctx, "usdc.near", "a.near", sdkmath.NewInt(5), msg)
	require.NoError(t, err)
	_, err = h.c.OnNonFungibleDeposit(ctx, "art.near", "a.near", "", "token-1", msg)
	require.NoError(t, err)
	require.Equal(t, 2, h.pending(t, handle.New("twitter", "erin")))
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t)
	h.registerToken(t, "usdc.near", storage.StandardFungible)
	tests := []struct {
		name     string
		run      func() error
		category Category
	}{
		{"malformed routing", func() error {
			_, err := h.c.OnFungibleDeposit(ctx, "usdc.near", "a.near", sdkmath.NewInt(1), "not json")
			return err
		}, CategoryResource},
		{"missing handle", func() error {
			_, err := h.c.OnFungibleDeposit(ctx, "usdc.near", "a.near", sdkmath.NewInt(1), `{"platform":"x"}`)
			return err
		}, CategoryResource},
		{"zero amount", func() error {
			_, err := h.c.OnFungibleDeposit(ctx, "usdc.near", "a.near", sdkmath.ZeroInt(), `{"platform":"x","handle":"y"}`)
			return err
		}, CategoryResource},
		{"zero native", func() error {
			_, err := h.c.OnNativeDeposit(ctx, nativeCustodian, "a.near", sdkmath.ZeroInt(), `{"platform":"x","handle":"y"}`)
			return err
		}, CategoryResource},
		{"empty token id", func() error {
			_, err := h.c.OnNonFungibleDeposit(ctx, "art.near", "a.near", "", " ", `{"platform":"x","handle":"y"}`)
			return err
		}, CategoryResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			require.Equal(t, tt.category, CategoryOf(err), "error: %v", err)
		})
	}
	require.Zero(t, h.events.Count(events.ClaimCreated))
}

func TestSettlePreconditions(t *testing.T) {
	h := newHarness(t)
	erin := handle.New("twitter", "erin")

	_, err := h.c.Settle(ctx, erin, "erin.near")
	require.ErrorIs(t, err, ErrNotLinked)

	h.link(t, erin, "erin.near")
	_, err = h.c.Settle(ctx, erin, "mallory.near")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, CategoryAuthorization, CategoryOf(err))

	_, err = h.c.Settle(ctx, erin, "erin.near")
	require.ErrorIs(t, err, ErrNoPendingClaims)
}

func TestDuplicateAndOutOfOrderCompletions(t *testing.T) {
	h := newHarness(t)
	fay := handle.New("twitter", "fay")
	var ids []storage.ClaimID
	for i := 1; i <= 3; i++ {
		d, err := h.tip(t, "tipper.near", fay, sdkmath.NewInt(int64(i)))
		require.NoError(t, err)
		ids = append(ids, d.Claim.ID)
	}
	h.link(t, fay, "fay.near")

	report, err := h.c.Settle(ctx, fay, "fay.near")
	require.NoError(t, err)
	require.ElementsMatch(t, ids, report.Dispatched)
	tracked := h.dispatcher.Tracked()
	require.Len(t, tracked, 3)

	// Reverse order, then a duplicate of the first to land.
	for i := len(tracked) - 1; i >= 0; i-- {
		require.NoError(t, h.c.OnTransferComplete(ctx, tracked[i], nil))
		n := h.pending(t, fay)
		require.Equal(t, i, n)
	}
	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[2], nil))
	require.Equal(t, 3, h.events.Count(events.ClaimProcessed))

	for _, id := range ids {
		claim, ok, err := h.c.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, claim.Settled)
	}
	_, err = h.c.Settle(ctx, fay, "fay.near")
	require.ErrorIs(t, err, ErrNoPendingClaims)

	linked, ok, err := h.c.LinkedAccount(ctx, fay)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fay.near", linked)
}

func TestFailedTransferLeavesClaimPending(t *testing.T) {
	h := newHarness(t)
	gus := handle.New("twitter", "gus")
	d, err := h.tip(t, "tipper.near", gus, sdkmath.NewInt(10))
	require.NoError(t, err)
	h.link(t, gus, "gus.near")

	_, err = h.c.Settle(ctx, gus, "gus.near")
	require.NoError(t, err)

	// In flight: a second settle does not dispatch it again.
	report, err := h.c.Settle(ctx, gus, "gus.near")
	require.NoError(t, err)
	require.Empty(t, report.Dispatched)
	require.Equal(t, []storage.ClaimID{d.Claim.ID}, report.Busy)

	tracked := h.dispatcher.Tracked()
	require.Len(t, tracked, 1)
	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[0], transfer.ErrTransferFailed))
	require.Equal(t, 1, h.pending(t, gus))
	claim, _, err := h.c.Claim(ctx, d.Claim.ID)
	require.NoError(t, err)
	require.False(t, claim.Settled)
	require.Zero(t, h.events.Count(events.ClaimProcessed))

	report, err = h.c.Settle(ctx, gus, "gus.near")
	require.NoError(t, err)
	require.Equal(t, []storage.ClaimID{d.Claim.ID}, report.Dispatched)
}

func TestFailedReclaimCanBeRetried(t *testing.T) {
	h := newHarness(t)
	hal := handle.New("twitter", "hal")
	d, err := h.tip(t, "tipper.near", hal, sdkmath.NewInt(10))
	require.NoError(t, err)
	h.clock.Advance(DefaultClaimTTL + time.Second)

	require.NoError(t, h.c.Reclaim(ctx, hal, d.Claim.ID, "tipper.near"))
	tracked := h.dispatcher.Tracked()
	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[0], errors.New("custodian down")))
	require.Zero(t, h.events.Count(events.TipReclaimed))

	require.NoError(t, h.c.Reclaim(ctx, hal, d.Claim.ID, "tipper.near"))
	tracked = h.dispatcher.Tracked()
	require.Len(t, tracked, 2)
	require.NoError(t, h.c.OnTransferComplete(ctx, tracked[1], nil))
	require.Equal(t, 1, h.events.Count(events.TipReclaimed))
	require.Zero(t, h.pending(t, hal))
}

func TestReclaimRejectsSettledAndUnknownClaims(t *testing.T) {
	h := newHarness(t)
	ivy := handle.New("twitter", "ivy")
	d, err := h.tip(t, "tipper.near", ivy, sdkmath.NewInt(10))
	require.NoError(t, err)
	h.link(t, ivy, "ivy.near")
	_, err = h.c.Settle(ctx, ivy, "ivy.near")
	require.NoError(t, err)
	require.NoError(t, h.c.OnTransferComplete(ctx, h.dispatcher.Tracked()[0], nil))

	h.clock.Advance(DefaultClaimTTL)
	require.ErrorIs(t, h.c.Reclaim(ctx, ivy, d.Claim.ID, "tipper.near"), ErrAlreadySettled)
	require.ErrorIs(t, h.c.Reclaim(ctx, ivy, 999, "tipper.near"), ErrClaimNotFound)
	require.ErrorIs(t, h.c.Reclaim(ctx, handle.New("twitter", "other"), d.Claim.ID, "tipper.near"), ErrClaimNotFound)
}

func TestCompletionForStaleRecipientIgnored(t *testing.T) {
	h := newHarness(t)
	jay := handle.New("twitter", "jay")
	d, err := h.tip(t, "tipper.near", jay, sdkmath.NewInt(10))
	require.NoError(t, err)
	h.link(t, jay, "jay.near")

	forged := transfer.Continuation{Handle: jay, Kind: asset.KindNative, ClaimID: uint64(d.Claim.ID), Recipient: "mallory.near"}
	err = h.c.OnTransferComplete(ctx, forged, nil)
	require.ErrorIs(t, err, ErrStaleContinuation)
	require.Equal(t, 1, h.pending(t, jay))

	err = h.c.OnTransferComplete(ctx, transfer.Continuation{Handle: jay, Kind: asset.KindNative, ClaimID: 4242, Recipient: "jay.near"}, nil)
	require.ErrorIs(t, err, ErrClaimNotFound)
}

func TestSettleRespectsBatchCeiling(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BatchSize = 2 })
	kim := handle.New("twitter", "kim")
	for i := 0; i < 5; i++ {
		_, err := h.tip(t, "tipper.near", kim, sdkmath.NewInt(1))
		require.NoError(t, err)
	}
	h.link(t, kim, "kim.near")

	report, err := h.c.Settle(ctx, kim, "kim.near")
	require.NoError(t, err)
	require.Len(t, report.Dispatched, 2)

	// Busy claims do not count against the next batch.
	report, err = h.c.Settle(ctx, kim, "kim.near")
	require.NoError(t, err)
	require.Len(t, report.Dispatched, 2)
	require.Len(t, report.Busy, 2)

	for _, cont := range h.dispatcher.Tracked() {
		require.NoError(t, h.c.OnTransferComplete(ctx, cont, nil))
	}
	require.Equal(t, 1, h.pending(t, kim))
}

func TestLinkRaceFirstVerdictWins(t *testing.T) {
	h := newHarness(t)
	lee := handle.New("twitter", "lee")
	now := h.clock.Now()

	first, err := h.c.RequestLink(ctx, lee, freshProof(now), "lee.near")
	require.NoError(t, err)
	second, err := h.c.RequestLink(ctx, lee, freshProof(now), "impostor.near")
	require.NoError(t, err)

	h.gateway.Resolve(1, nil)
	h.gateway.Resolve(0, nil)
	require.NoError(t, second.Wait(ctx))
	require.ErrorIs(t, first.Wait(ctx), ErrAlreadyLinked)

	account, ok, err := h.c.LinkedAccount(ctx, lee)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "impostor.near", account)
	require.Equal(t, 1, h.events.Count(events.AccountLinked))

	_, err = h.c.RequestLink(ctx, lee, freshProof(now), "lee.near")
	require.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestLinkVerificationFailure(t *testing.T) {
	h := newHarness(t)
	mo := handle.New("twitter", "mo")
	ticket, err := h.c.RequestLink(ctx, mo, freshProof(h.clock.Now()), "mo.near")
	require.NoError(t, err)
	select {
	case <-ticket.Done():
		t.Fatal("ticket resolved before verification")
	default:
	}
	h.gateway.Resolve(0, proof.ErrRejected)
	err = ticket.Wait(ctx)
	require.ErrorIs(t, err, ErrVerification)
	require.ErrorIs(t, err, proof.ErrRejected)
	require.Equal(t, CategoryExternal, CategoryOf(err))

	linked, err := h.c.IsLinked(ctx, mo)
	require.NoError(t, err)
	require.False(t, linked)
	require.Zero(t, h.events.Count(events.AccountLinked))
}

func TestLinkRecency(t *testing.T) {
	stale := func(h *harness) proof.Proof { return freshProof(h.clock.Now().Add(-10 * time.Minute)) }

	enforced := newHarness(t, func(o *Options) { o.EnforceRecency = true })
	_, err := enforced.c.RequestLink(ctx, handle.New("x", "ned"), stale(enforced), "ned.near")
	require.ErrorIs(t, err, proof.ErrStale)
	require.Equal(t, CategoryResource, CategoryOf(err))

	relaxed := newHarness(t)
	_, err = relaxed.c.RequestLink(ctx, handle.New("x", "ned"), stale(relaxed), "ned.near")
	require.NoError(t, err)
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	oz := handle.New("twitter", "oz")
	d, err := h.tip(t, "tipper.near", oz, sdkmath.NewInt(1))
	require.NoError(t, err)

	require.ErrorIs(t, h.c.Pause(ctx, "mallory.near"), ErrUnauthorized)
	require.ErrorIs(t, h.c.Unpause(ctx, owner), ErrNotPaused)
	require.NoError(t, h.c.Pause(ctx, owner))
	require.ErrorIs(t, h.c.Pause(ctx, owner), ErrAlreadyPaused)

	_, err = h.tip(t, "tipper.near", oz, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrPaused)
	_, err = h.c.RequestLink(ctx, oz, freshProof(h.clock.Now()), "oz.near")
	require.ErrorIs(t, err, ErrPaused)
	_, err = h.c.Settle(ctx, oz, "oz.near")
	require.ErrorIs(t, err, ErrPaused)
	h.clock.Advance(DefaultClaimTTL)
	require.ErrorIs(t, h.c.Reclaim(ctx, oz, d.Claim.ID, "tipper.near"), ErrPaused)

	require.NoError(t, h.c.Unpause(ctx, owner))
	require.NoError(t, h.c.Reclaim(ctx, oz, d.Claim.ID, "tipper.near"))
}

func TestTokenAdmin(t *testing.T) {
	h := newHarness(t)
	tok := storage.Token{ID: "usdc.near", Info: storage.TokenInfo{Standard: storage.StandardFungible, Decimals: 6, Symbol: "USDC", Chain: "near"}}
	require.ErrorIs(t, h.c.RegisterToken(ctx, "mallory.near", tok), ErrUnauthorized)
	require.ErrorIs(t, h.c.RegisterToken(ctx, owner, storage.Token{ID: "x.near", Info: storage.TokenInfo{Standard: "ERC20"}}), ErrInvalidRequest)
	require.NoError(t, h.c.RegisterToken(ctx, owner, tok))

	info, ok, err := h.c.Token(ctx, "usdc.near")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "USDC", info.Symbol)

	list, err := h.c.Tokens(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, h.c.RemoveToken(ctx, "mallory.near", "usdc.near"), ErrUnauthorized)
	require.NoError(t, h.c.RemoveToken(ctx, owner, "usdc.near"))
	require.ErrorIs(t, h.c.RemoveToken(ctx, owner, "usdc.near"), storage.ErrTokenNotFound)
}

func TestSweepExpired(t *testing.T) {
	h := newHarness(t)
	pat := handle.New("twitter", "pat")
	old, err := h.tip(t, "tipper.near", pat, sdkmath.NewInt(1))
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)
	_, err = h.tip(t, "tipper.near", pat, sdkmath.NewInt(2))
	require.NoError(t, err)

	h.clock.Advance(DefaultClaimTTL - time.Hour)
	n, err := h.c.SweepExpired(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, h.pending(t, pat))

	// Swept claims stay reclaimable.
	require.NoError(t, h.c.Reclaim(ctx, pat, old.Claim.ID, "tipper.near"))
}

func TestPendingClaimsPagination(t *testing.T) {
	h := newHarness(t)
	quinn := handle.New("twitter", "quinn")
	for i := 0; i < 5; i++ {
		_, err := h.tip(t, "tipper.near", quinn, sdkmath.NewInt(int64(i+1)))
		require.NoError(t, err)
	}
	page, err := h.c.PendingClaims(ctx, quinn, 3, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Less(t, page[0].ID, page[1].ID)
	require.Equal(t, "4", asset.FormatAmount(page[0].Asset.Amount()))
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, CategoryInternal},
		{errors.New("boom"), CategoryInternal},
		{ErrUnauthorized, CategoryAuthorization},
		{ErrNotLinked, CategoryState},
		{ErrPaused, CategoryState},
		{handle.ErrMalformedRouting, CategoryResource},
		{asset.ErrZeroAmount, CategoryResource},
		{transfer.ErrTransferFailed, CategoryExternal},
		{proof.ErrVerifierFailed, CategoryExternal},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.err); got != tt.want {
			t.Errorf("CategoryOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
