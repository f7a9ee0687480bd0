package transfer

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/memohai/claimd/internal/asset"
)

// Ledger is an in-process book of balances and token owners used in place of real
// custodians. Individual recipients can be told to fail.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]sdkmath.Int
	owners   map[string]string
	failures map[string]error
	history  []Request
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: map[string]sdkmath.Int{},
		owners:   map[string]string{},
		failures: map[string]error{},
	}
}

// Adapters returns one adapter per asset kind, all backed by l.
func (l *Ledger) Adapters() []Adapter {
	out := make([]Adapter, 0, len(asset.Kinds))
	for _, kind := range asset.Kinds {
		out = append(out, ledgerAdapter{ledger: l, kind: kind})
	}
	return out
}

// FailFor makes every transfer to recipient fail with err; a nil err clears it.
func (l *Ledger) FailFor(recipient string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, recipient)
		return
	}
	l.failures[recipient] = err
}

// Balance returns what account holds of the fungible asset identified by contract ("" for native).
func (l *Ledger) Balance(account, contract string) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.balances[balanceKey(account, contract)]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// OwnerOf returns the recorded owner of a non-fungible token.
func (l *Ledger) OwnerOf(contract, tokenID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[contract+"\x00"+tokenID]
	return owner, ok
}

// History returns every successful transfer in completion order.
func (l *Ledger) History() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Request(nil), l.history...)
}

func (l *Ledger) apply(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.failures[req.Recipient]; ok {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	switch a := req.Asset.(type) {
	case asset.Native:
		l.credit(req.Recipient, "", a.Amount())
	case asset.FungibleToken:
		l.credit(req.Recipient, a.Contract, a.Amount())
	case asset.NonFungibleToken:
		l.owners[a.Contract+"\x00"+a.TokenID] = req.Recipient
	default:
		return fmt.Errorf("%w: unsupported asset %T", ErrTransferFailed, req.Asset)
	}
	l.history = append(l.history, req)
	return nil
}

func (l *Ledger) credit(account, contract string, amount sdkmath.Int) {
	key := balanceKey(account, contract)
	current, ok := l.balances[key]
	if !ok {
		current = sdkmath.ZeroInt()
	}
	l.balances[key] = current.Add(amount)
}

func balanceKey(account, contract string) string {
	return account + "\x00" + contract
}

type ledgerAdapter struct {
	ledger *Ledger
	kind   asset.Kind
}

func (a ledgerAdapter) Kind() asset.Kind { return a.kind }

func (a ledgerAdapter) Transfer(ctx context.Context, req Request) error {
	if req.Asset == nil || req.Asset.Kind() != a.kind {
		return fmt.Errorf("%w: ledger adapter %s cannot move %v", ErrTransferFailed, a.kind, req.Asset)
	}
	return a.ledger.apply(ctx, req)
}
