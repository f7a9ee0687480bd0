// Package proof models ownership proofs and the external verifier that checks them.
package proof

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxAge is how old a proof may be before it is considered stale.
const MaxAge = 5 * time.Minute

var (
	ErrMalformed      = errors.New("malformed proof")
	ErrStale          = errors.New("proof is not recent")
	ErrRejected       = errors.New("proof rejected by verifier")
	ErrVerifierFailed = errors.New("proof verifier unavailable")
)

// ClaimInfo describes what the proof attests. Provider is the platform and
// Parameters carries the handle.
type ClaimInfo struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
}

// ClaimData is the signed payload.
type ClaimData struct {
	Identifier string `json:"identifier"`
	Owner      string `json:"owner"`
	Epoch      uint64 `json:"epoch"`
	TimestampS uint64 `json:"timestampS"`
}

type SignedClaim struct {
	Claim      ClaimData `json:"claim"`
	Signatures []string  `json:"signatures"`
}

// Proof is an opaque ownership attestation forwarded to the verifier as-is.
type Proof struct {
	ClaimInfo   ClaimInfo   `json:"claimInfo"`
	SignedClaim SignedClaim `json:"signedClaim"`
}

// Platform returns the attested platform.
func (p Proof) Platform() string {
	return strings.TrimSpace(p.ClaimInfo.Provider)
}

// Handle returns the attested handle.
func (p Proof) Handle() string {
	return strings.TrimSpace(p.ClaimInfo.Parameters)
}

// Timestamp is the signing time of the claim.
func (p Proof) Timestamp() time.Time {
	return time.Unix(int64(p.SignedClaim.Claim.TimestampS), 0).UTC()
}

// IsRecent reports whether the proof was signed less than maxAge before now.
// Timestamps in the future count as recent.
func (p Proof) IsRecent(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = MaxAge
	}
	age := now.Sub(p.Timestamp())
	if age < 0 {
		return true
	}
	return age < maxAge
}

// Validate checks that the proof carries the fields a verifier needs.
func (p Proof) Validate() error {
	if p.Platform() == "" {
		return fmt.Errorf("%w: provider is required", ErrMalformed)
	}
	if strings.TrimSpace(p.SignedClaim.Claim.Identifier) == "" {
		return fmt.Errorf("%w: claim identifier is required", ErrMalformed)
	}
	if len(p.SignedClaim.Signatures) == 0 {
		return fmt.Errorf("%w: at least one signature is required", ErrMalformed)
	}
	return nil
}
