package settlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

const (
	owner           = "owner.near"
	nativeCustodian = "wallet.near"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// manualDispatcher records transfers and never completes them on its own.
type manualDispatcher struct {
	mu        sync.Mutex
	complete  transfer.CompletionFunc
	requests  []transfer.Request
	tracked   []transfer.Continuation
	untracked []transfer.Request
}

func (d *manualDispatcher) Dispatch(_ context.Context, req transfer.Request, cont *transfer.Continuation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if cont == nil {
		d.untracked = append(d.untracked, req)
		return
	}
	d.tracked = append(d.tracked, *cont)
}

func (d *manualDispatcher) OnComplete(fn transfer.CompletionFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.complete = fn
}

func (d *manualDispatcher) Tracked() []transfer.Continuation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transfer.Continuation(nil), d.tracked...)
}

func (d *manualDispatcher) Untracked() []transfer.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transfer.Request(nil), d.untracked...)
}

func (d *manualDispatcher) Requests() []transfer.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transfer.Request(nil), d.requests...)
}

// manualGateway holds verifications until the test resolves them.
type manualGateway struct {
	mu      sync.Mutex
	pending []func(error)
}

func (g *manualGateway) Submit(_ context.Context, _ proof.Proof, done func(error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = append(g.pending, done)
}

func (g *manualGateway) Resolve(i int, err error) {
	g.mu.Lock()
	done := g.pending[i]
	g.mu.Unlock()
	done(err)
}

type harness struct {
	store      *storage.Memory
	dispatcher *manualDispatcher
	gateway    *manualGateway
	events     *events.Recorder
	clock      *fakeClock
	c          *Coordinator
}

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store:      storage.NewMemory(),
		dispatcher: &manualDispatcher{},
		gateway:    &manualGateway{},
		events:     &events.Recorder{},
		clock:      &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts := Options{Owner: owner, Now: h.clock.Now}
	for _, fn := range tweak {
		fn(&opts)
	}
	c, err := New(context.Background(), slog.New(slog.DiscardHandler), h.store, h.dispatcher, h.gateway, h.events, nil, opts)
	require.NoError(t, err)
	h.c = c
	return h
}

func freshProof(now time.Time) proof.Proof {
	return proof.Proof{
		ClaimInfo: proof.ClaimInfo{Provider: "twitter", Parameters: "alice"},
		SignedClaim: proof.SignedClaim{
			Claim:      proof.ClaimData{Identifier: "0x1", Owner: "0xowner", Epoch: 1, TimestampS: uint64(now.Unix())},
			Signatures: []string{"0xsig"},
		},
	}
}

// link runs a full link request with an approving verifier.
func (h *harness) link(t *testing.T, hd handle.Handle, account string) {
	t.Helper()
	ticket, err := h.c.RequestLink(context.Background(), hd, freshProof(h.clock.Now()), account)
	require.NoError(t, err)
	h.gateway.Resolve(len(h.gateway.pending)-1, nil)
	require.NoError(t, ticket.Wait(context.Background()))
}

func (h *harness) registerToken(t *testing.T, id string, standard storage.TokenStandard) {
	t.Helper()
	require.NoError(t, h.c.RegisterToken(context.Background(), owner, storage.Token{
		ID:   id,
		Info: storage.TokenInfo{Standard: standard, Decimals: 6, Symbol: "TKN", Chain: "near"},
	}))
}

func (h *harness) pending(t *testing.T, hd handle.Handle) int {
	t.Helper()
	n, err := h.c.PendingCount(context.Background(), hd)
	require.NoError(t, err)
	return n
}

func routing(t *testing.T, hd handle.Handle) string {
	t.Helper()
	msg, err := json.Marshal(map[string]string{"platform": hd.Platform, "handle": hd.Handle})
	require.NoError(t, err)
	return string(msg)
}

// tip reports a native deposit through the allow-listed native custodian.
func (h *harness) tip(t *testing.T, sender string, hd handle.Handle, amount sdkmath.Int) (Deposit, error) {
	t.Helper()
	if _, ok, err := h.store.Token(context.Background(), nativeCustodian); err == nil && !ok {
		h.registerToken(t, nativeCustodian, storage.StandardNative)
	}
	return h.c.OnNativeDeposit(context.Background(), nativeCustodian, sender, amount, routing(t, hd))
}
