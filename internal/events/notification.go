// Package events builds and fans out the structured notifications consumed by off-chain observers.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/handle"
)

// JSONPrefix precedes every rendered notification line.
const JSONPrefix = "EVENT_JSON:"

const (
	Standard = "claim_protocol"
	Version  = "1.0.0"
)

// Name identifies a notification type.
type Name string

const (
	AccountLinked  Name = "account_linked"
	TipTransferred Name = "tip_transferred"
	ClaimCreated   Name = "claim_created"
	ClaimProcessed Name = "claim_processed"
	TipReclaimed   Name = "tip_reclaimed"
)

// Notification is the {standard, version, event, data} envelope.
// Field order is lexicographic so the rendered bytes never change between releases.
type Notification struct {
	Data     []any  `json:"data"`
	Event    Name   `json:"event"`
	Standard string `json:"standard"`
	Version  string `json:"version"`

	// Handle scopes delivery on the hub; it is not part of the payload.
	Handle handle.Handle `json:"-"`
}

type accountLinkedData struct {
	AccountID string `json:"account_id"`
	Handle    string `json:"handle"`
	Platform  string `json:"platform"`
}

type tipTransferredData struct {
	Amount    string `json:"amount"`
	Handle    string `json:"handle"`
	Platform  string `json:"platform"`
	Recipient string `json:"recipient"`
	TokenType string `json:"token_type"`
}

type claimCreatedData struct {
	Amount    string `json:"amount"`
	Handle    string `json:"handle"`
	Platform  string `json:"platform"`
	Tipper    string `json:"tipper"`
	TokenType string `json:"token_type"`
}

type claimProcessedData struct {
	Amount    string `json:"amount"`
	Claimer   string `json:"claimer"`
	Handle    string `json:"handle"`
	Platform  string `json:"platform"`
	TokenType string `json:"token_type"`
}

type tipReclaimedData struct {
	Amount    string `json:"amount"`
	Handle    string `json:"handle"`
	Platform  string `json:"platform"`
	Tipper    string `json:"tipper"`
	TokenType string `json:"token_type"`
}

func newNotification(name Name, h handle.Handle, data any) Notification {
	return Notification{
		Data:     []any{data},
		Event:    name,
		Standard: Standard,
		Version:  Version,
		Handle:   h,
	}
}

// NewAccountLinked reports a committed identity link.
func NewAccountLinked(h handle.Handle, account string) Notification {
	return newNotification(AccountLinked, h, accountLinkedData{
		AccountID: account,
		Handle:    h.Handle,
		Platform:  h.Platform,
	})
}

// NewTipTransferred reports a deposit forwarded straight to a linked account.
func NewTipTransferred(h handle.Handle, a asset.Asset, recipient string) Notification {
	return newNotification(TipTransferred, h, tipTransferredData{
		Amount:    asset.FormatAmount(a.Amount()),
		Handle:    h.Handle,
		Platform:  h.Platform,
		Recipient: recipient,
		TokenType: a.Kind().String(),
	})
}

// NewClaimCreated reports a deposit escrowed for an unlinked handle.
func NewClaimCreated(h handle.Handle, a asset.Asset, tipper string) Notification {
	return newNotification(ClaimCreated, h, claimCreatedData{
		Amount:    asset.FormatAmount(a.Amount()),
		Handle:    h.Handle,
		Platform:  h.Platform,
		Tipper:    tipper,
		TokenType: a.Kind().String(),
	})
}

// NewClaimProcessed reports a settled claim.
func NewClaimProcessed(h handle.Handle, a asset.Asset, claimer string) Notification {
	return newNotification(ClaimProcessed, h, claimProcessedData{
		Amount:    asset.FormatAmount(a.Amount()),
		Claimer:   claimer,
		Handle:    h.Handle,
		Platform:  h.Platform,
		TokenType: a.Kind().String(),
	})
}

// NewTipReclaimed reports an expired claim returned to its sender.
func NewTipReclaimed(h handle.Handle, a asset.Asset, tipper string) Notification {
	return newNotification(TipReclaimed, h, tipReclaimedData{
		Amount:    asset.FormatAmount(a.Amount()),
		Handle:    h.Handle,
		Platform:  h.Platform,
		Tipper:    tipper,
		TokenType: a.Kind().String(),
	})
}

// JSON returns the compact payload without the prefix.
func (n Notification) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Line renders the full EVENT_JSON line.
func (n Notification) Line() (string, error) {
	payload, err := n.JSON()
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", n.Event, err)
	}
	return JSONPrefix + string(payload), nil
}
