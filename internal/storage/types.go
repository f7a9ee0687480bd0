package storage

import (
	"errors"
	"time"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/handle"
)

// Errors returned by Store implementations.
var (
	ErrAlreadyInitialized = errors.New("store already initialized by another owner")
	ErrNotInitialized     = errors.New("store not initialized")
	ErrAlreadyLinked      = errors.New("handle already linked")
	ErrClaimNotFound      = errors.New("claim not found")
	ErrTokenNotFound      = errors.New("token not found")
)

// ClaimID is assigned from a strictly increasing counter and never reused.
type ClaimID uint64

// Claim is an escrowed obligation. Records are retained after settlement as an audit trail.
type Claim struct {
	ID        ClaimID       `json:"id"`
	Handle    handle.Handle `json:"handle"`
	Asset     asset.Asset   `json:"-"`
	Sender    string        `json:"sender"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Settled   bool          `json:"settled"`
	Reclaimed bool          `json:"reclaimed"`
}

// Expired reports whether now has reached the claim's expiry.
func (c Claim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// NewClaim carries the fields fixed at creation.
type NewClaim struct {
	Handle    handle.Handle
	Asset     asset.Asset
	Sender    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PendingRef points at one entry of the pending index.
type PendingRef struct {
	Handle  handle.Handle
	ClaimID ClaimID
}

// TokenStandard names the custody standard of an allow-listed token.
type TokenStandard string

const (
	StandardNative      TokenStandard = "NEAR"
	StandardFungible    TokenStandard = "NEP141"
	StandardNonFungible TokenStandard = "NEP171"
)

// TokenInfo describes an allow-listed custodian.
type TokenInfo struct {
	Standard TokenStandard `json:"standard"`
	Decimals uint8         `json:"decimals"`
	Symbol   string        `json:"symbol"`
	Chain    string        `json:"chain"`
}

// Token pairs a custodian id with its info.
type Token struct {
	ID   string    `json:"token_id"`
	Info TokenInfo `json:"token_info"`
}
