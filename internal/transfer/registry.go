package transfer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/memohai/claimd/internal/asset"
)

// Registry holds one adapter per asset kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[asset.Kind]Adapter
}

// NewRegistry creates a Registry with the given adapters registered.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		adapters: map[asset.Kind]Adapter{},
	}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter is nil")
	}
	kind := adapter.Kind()
	if !kind.Valid() {
		return fmt.Errorf("unknown asset kind: %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("asset kind already registered: %s", kind)
	}
	r.adapters[kind] = adapter
	return nil
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind asset.Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Kinds returns the registered kinds in a stable order.
func (r *Registry) Kinds() []asset.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]asset.Kind, 0, len(r.adapters))
	for kind := range r.adapters {
		items = append(items, kind)
	}
	slices.Sort(items)
	return items
}

// Transfer routes req to the adapter for its asset kind.
func (r *Registry) Transfer(ctx context.Context, req Request) error {
	if req.Asset == nil {
		return fmt.Errorf("%w: nil asset", ErrTransferFailed)
	}
	a, ok := r.Get(req.Asset.Kind())
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, req.Asset.Kind())
	}
	return a.Transfer(ctx, req)
}
