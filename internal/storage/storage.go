// Package storage holds the durable state owned by the settlement coordinator:
// identity links, claim records, the per-handle pending index, the token allow-list and the pause flag.
package storage

import (
	"context"
	"time"

	"github.com/memohai/claimd/internal/handle"
)

// Store is the persistence boundary of the settlement aggregate. It is owned by exactly
// one coordinator; callers outside the aggregate receive copies.
type Store interface {
	// Init records the owner account. It fails with ErrAlreadyInitialized when a different owner is recorded.
	Init(ctx context.Context, owner string) error
	Owner(ctx context.Context) (string, error)

	LinkedAccount(ctx context.Context, h handle.Handle) (string, bool, error)
	// LinkAccount is write-once per handle and returns ErrAlreadyLinked on a second call.
	LinkAccount(ctx context.Context, h handle.Handle, account string) error

	// CreateClaim assigns the next id, stores the record unsettled and adds it to the handle's pending set.
	CreateClaim(ctx context.Context, c NewClaim) (Claim, error)
	Claim(ctx context.Context, id ClaimID) (Claim, bool, error)
	// MarkSettled sets settled=true and reports whether this call changed it.
	MarkSettled(ctx context.Context, id ClaimID) (bool, error)
	// MarkReclaimed sets reclaimed=true and reports whether this call changed it.
	MarkReclaimed(ctx context.Context, id ClaimID) (bool, error)
	ClaimsBySender(ctx context.Context, sender string, from, limit int) ([]Claim, error)

	// PendingIDs returns up to limit ids from the handle's pending set, lowest id first.
	PendingIDs(ctx context.Context, h handle.Handle, limit int) ([]ClaimID, error)
	PendingCount(ctx context.Context, h handle.Handle) (int, error)
	// PendingClaims pages through the pending set ordered by claim id.
	PendingClaims(ctx context.Context, h handle.Handle, from, limit int) ([]Claim, error)
	// Prune removes ids from the pending set, dropping the bucket once it is empty.
	// Absent ids are ignored; the number actually removed is returned.
	Prune(ctx context.Context, h handle.Handle, ids ...ClaimID) (int, error)
	// ExpiredPending lists pending entries whose claim expired at or before now.
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]PendingRef, error)

	RegisterToken(ctx context.Context, t Token) error
	RemoveToken(ctx context.Context, id string) (bool, error)
	Token(ctx context.Context, id string) (TokenInfo, bool, error)
	Tokens(ctx context.Context, from, limit int) ([]Token, error)

	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}
