// Package transfer moves escrowed assets out through per-kind custodian adapters.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/handle"
)

var (
	ErrNoAdapter      = errors.New("no transfer adapter for asset kind")
	ErrTransferFailed = errors.New("transfer failed")
	// ErrOutcomeUnknown means the custodian did not answer in time; the asset may have moved.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown")
)

// Request is one outbound movement of an asset.
type Request struct {
	Recipient string
	Asset     asset.Asset
	Memo      string
}

// Validate checks the request before it leaves the process.
func (r Request) Validate() error {
	if r.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrTransferFailed)
	}
	if err := asset.Validate(r.Asset); err != nil {
		return err
	}
	return nil
}

// Continuation carries everything the completion path needs, bound at dispatch time.
// It is delivered back with the outcome and is never persisted.
type Continuation struct {
	Handle    handle.Handle `json:"handle"`
	Kind      asset.Kind    `json:"token_type"`
	ClaimID   uint64        `json:"claim_id"`
	Recipient string        `json:"recipient"`
	Reclaim   bool          `json:"is_reclaim"`
}

// Encode renders c for custodians that report completion over a webhook.
func (c Continuation) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeContinuation parses a continuation produced by Encode.
func DecodeContinuation(raw string) (Continuation, error) {
	var c Continuation
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	if err := c.Handle.Validate(); err != nil {
		return Continuation{}, fmt.Errorf("decode continuation: %w", err)
	}
	if !c.Kind.Valid() {
		return Continuation{}, fmt.Errorf("decode continuation: unknown token type %q", c.Kind)
	}
	return c, nil
}

// Adapter moves one asset kind.
type Adapter interface {
	Kind() asset.Kind
	Transfer(ctx context.Context, req Request) error
}
