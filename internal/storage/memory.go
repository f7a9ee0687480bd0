package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/memohai/claimd/internal/handle"
)

// Memory is an in-process Store backed by plain maps.
type Memory struct {
	mu sync.RWMutex

	owner   string
	paused  bool
	nextID  ClaimID
	links   map[string]string
	claims  map[ClaimID]Claim
	pending map[string]map[ClaimID]struct{}
	tokens  map[string]TokenInfo
}

// NewMemory creates an empty store whose first claim id is 1.
func NewMemory() *Memory {
	return &Memory{
		nextID:  1,
		links:   map[string]string{},
		claims:  map[ClaimID]Claim{},
		pending: map[string]map[ClaimID]struct{}{},
		tokens:  map[string]TokenInfo{},
	}
}

func (m *Memory) Init(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" && m.owner != owner {
		return ErrAlreadyInitialized
	}
	m.owner = owner
	return nil
}

func (m *Memory) Owner(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.owner == "" {
		return "", ErrNotInitialized
	}
	return m.owner, nil
}

func (m *Memory) LinkedAccount(_ context.Context, h handle.Handle) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.links[h.Key()]
	return account, ok, nil
}

func (m *Memory) LinkAccount(_ context.Context, h handle.Handle, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := h.Key()
	if _, exists := m.links[key]; exists {
		return ErrAlreadyLinked
	}
	m.links[key] = account
	return nil
}

func (m *Memory) CreateClaim(_ context.Context, c NewClaim) (Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	claim := Claim{
		ID:        id,
		Handle:    c.Handle,
		Asset:     c.Asset,
		Sender:    c.Sender,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
	}
	m.claims[id] = claim
	key := c.Handle.Key()
	bucket, ok := m.pending[key]
	if !ok {
		bucket = map[ClaimID]struct{}{}
		m.pending[key] = bucket
	}
	bucket[id] = struct{}{}
	return claim, nil
}

func (m *Memory) Claim(_ context.Context, id ClaimID) (Claim, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	return c, ok, nil
}

func (m *Memory) MarkSettled(_ context.Context, id ClaimID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return false, ErrClaimNotFound
	}
	if c.Settled {
		return false, nil
	}
	c.Settled = true
	m.claims[id] = c
	return true, nil
}

func (m *Memory) MarkReclaimed(_ context.Context, id ClaimID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return false, ErrClaimNotFound
	}
	if c.Reclaimed {
		return false, nil
	}
	c.Reclaimed = true
	m.claims[id] = c
	return true, nil
}

func (m *Memory) ClaimsBySender(_ context.Context, sender string, from, limit int) ([]Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Claim, 0)
	for _, c := range m.claims {
		if c.Sender == sender {
			matches = append(matches, c)
		}
	}
	slices.SortFunc(matches, func(a, b Claim) int { return compareID(a.ID, b.ID) })
	return page(matches, from, limit), nil
}

func (m *Memory) PendingIDs(_ context.Context, h handle.Handle, limit int) ([]ClaimID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.sortedPending(h.Key()), 0, limit), nil
}

func (m *Memory) PendingCount(_ context.Context, h handle.Handle) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending[h.Key()]), nil
}

func (m *Memory) PendingClaims(_ context.Context, h handle.Handle, from, limit int) ([]Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := page(m.sortedPending(h.Key()), from, limit)
	out := make([]Claim, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.claims[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) Prune(_ context.Context, h handle.Handle, ids ...ClaimID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := h.Key()
	bucket, ok := m.pending[key]
	if !ok {
		return 0, nil
	}
	removed := 0
	for _, id := range ids {
		if _, ok := bucket[id]; ok {
			delete(bucket, id)
			removed++
		}
	}
	if len(bucket) == 0 {
		delete(m.pending, key)
	}
	return removed, nil
}

func (m *Memory) ExpiredPending(_ context.Context, now time.Time, limit int) ([]PendingRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]PendingRef, 0)
	for _, bucket := range m.pending {
		for id := range bucket {
			c, ok := m.claims[id]
			if ok && c.Expired(now) {
				refs = append(refs, PendingRef{Handle: c.Handle, ClaimID: id})
			}
		}
	}
	slices.SortFunc(refs, func(a, b PendingRef) int { return compareID(a.ClaimID, b.ClaimID) })
	return page(refs, 0, limit), nil
}

func (m *Memory) RegisterToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[strings.TrimSpace(t.ID)] = t.Info
	return nil
}

func (m *Memory) RemoveToken(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := m.tokens[id]; !ok {
		return false, nil
	}
	delete(m.tokens, id)
	return true, nil
}

func (m *Memory) Token(_ context.Context, id string) (TokenInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.tokens[strings.TrimSpace(id)]
	return info, ok, nil
}

func (m *Memory) Tokens(_ context.Context, from, limit int) ([]Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Token, 0, len(m.tokens))
	for id, info := range m.tokens {
		items = append(items, Token{ID: id, Info: info})
	}
	slices.SortFunc(items, func(a, b Token) int { return strings.Compare(a.ID, b.ID) })
	return page(items, from, limit), nil
}

func (m *Memory) Paused(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused, nil
}

func (m *Memory) SetPaused(_ context.Context, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	return nil
}

func (m *Memory) sortedPending(key string) []ClaimID {
	bucket := m.pending[key]
	ids := make([]ClaimID, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func compareID(a, b ClaimID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func page[T any](items []T, from, limit int) []T {
	if from < 0 {
		from = 0
	}
	if limit <= 0 || from >= len(items) {
		return []T{}
	}
	end := min(from+limit, len(items))
	return items[from:end]
}
