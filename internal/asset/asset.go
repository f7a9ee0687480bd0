// Package asset defines the closed set of escrowable asset variants.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Kind identifies an asset variant. The string values are part of the notification schema.
type Kind string

const (
	KindNative      Kind = "NEAR"
	KindFungible    Kind = "FT"
	KindNonFungible Kind = "NFT"
)

// Kinds lists every variant in a stable order.
var Kinds = []Kind{KindNative, KindFungible, KindNonFungible}

func (k Kind) String() string { return string(k) }

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindNative, KindFungible, KindNonFungible:
		return true
	}
	return false
}

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrZeroAmount    = errors.New("amount must be positive")
	ErrInvalidAsset  = errors.New("invalid asset")
)

// Asset is one of Native, FungibleToken or NonFungibleToken.
type Asset interface {
	Kind() Kind
	// Amount is zero for non-fungible tokens.
	Amount() sdkmath.Int
	// Label is a short human-readable description, e.g. "FT(usdc.near)".
	Label() string

	sealed()
}

// Native is value in the ledger's own currency.
type Native struct {
	Value sdkmath.Int
}

// FungibleToken is an amount of a fungible token held by Contract.
type FungibleToken struct {
	Contract string
	Value    sdkmath.Int
}

// NonFungibleToken is a single token of Contract.
type NonFungibleToken struct {
	Contract string
	TokenID  string
}

func (Native) Kind() Kind             { return KindNative }
func (n Native) Amount() sdkmath.Int  { return orZero(n.Value) }
func (Native) Label() string          { return "Near" }
func (Native) sealed()                {}
func (FungibleToken) Kind() Kind      { return KindFungible }
func (FungibleToken) sealed()         {}
func (f FungibleToken) Label() string { return fmt.Sprintf("FT(%s)", f.Contract) }

func (f FungibleToken) Amount() sdkmath.Int { return orZero(f.Value) }

func (NonFungibleToken) Kind() Kind { return KindNonFungible }

// Amount is always zero: a non-fungible token is not divisible.
func (NonFungibleToken) Amount() sdkmath.Int { return sdkmath.ZeroInt() }

func (n NonFungibleToken) Label() string {
	return fmt.Sprintf("NFT(%s, %s)", n.Contract, n.TokenID)
}

func (NonFungibleToken) sealed() {}

// NewNative builds a native asset.
func NewNative(amount sdkmath.Int) Native {
	return Native{Value: orZero(amount)}
}

// NewFungible builds a fungible-token asset.
func NewFungible(contract string, amount sdkmath.Int) FungibleToken {
	return FungibleToken{Contract: strings.TrimSpace(contract), Value: orZero(amount)}
}

// NewNonFungible builds a non-fungible-token asset.
func NewNonFungible(contract, tokenID string) NonFungibleToken {
	return NonFungibleToken{Contract: strings.TrimSpace(contract), TokenID: tokenID}
}

// Contract returns the custodian contract of a, or "" for native value.
func Contract(a Asset) string {
	switch v := a.(type) {
	case Native:
		return ""
	case FungibleToken:
		return v.Contract
	case NonFungibleToken:
		return v.Contract
	default:
		panic(fmt.Sprintf("asset: unknown variant %T", a))
	}
}

// Validate checks variant-specific requirements.
func Validate(a Asset) error {
	switch v := a.(type) {
	case Native:
		return requirePositive(v.Value)
	case FungibleToken:
		if v.Contract == "" {
			return fmt.Errorf("%w: fungible token contract is required", ErrInvalidAsset)
		}
		return requirePositive(v.Value)
	case NonFungibleToken:
		if v.Contract == "" {
			return fmt.Errorf("%w: non-fungible token contract is required", ErrInvalidAsset)
		}
		if strings.TrimSpace(v.TokenID) == "" {
			return fmt.Errorf("%w: token id is required", ErrInvalidAsset)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil", ErrInvalidAsset)
	default:
		panic(fmt.Sprintf("asset: unknown variant %T", a))
	}
}

// amountBits bounds every amount to an unsigned 128-bit value.
const amountBits = 128

// ParseAmount parses a non-negative decimal integer string.
func ParseAmount(raw string) (sdkmath.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdkmath.Int{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if v.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if v.BigInt().BitLen() > amountBits {
		return sdkmath.Int{}, fmt.Errorf("%w: exceeds %d bits", ErrInvalidAmount, amountBits)
	}
	return v, nil
}

// FormatAmount renders v as a decimal string; a nil amount renders as "0".
func FormatAmount(v sdkmath.Int) string {
	return orZero(v).String()
}

func requirePositive(v sdkmath.Int) error {
	if v.IsNil() || !v.IsPositive() {
		return ErrZeroAmount
	}
	if v.BigInt().BitLen() > amountBits {
		return fmt.Errorf("%w: exceeds %d bits", ErrInvalidAmount, amountBits)
	}
	return nil
}

func orZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}

// Record is the flat, serialisable form of an Asset.
type Record struct {
	Kind     Kind   `json:"kind"`
	Contract string `json:"contract,omitempty"`
	TokenID  string `json:"token_id,omitempty"`
	Amount   string `json:"amount"`
}

// ToRecord flattens a.
func ToRecord(a Asset) Record {
	switch v := a.(type) {
	case Native:
		return Record{Kind: KindNative, Amount: FormatAmount(v.Value)}
	case FungibleToken:
		return Record{Kind: KindFungible, Contract: v.Contract, Amount: FormatAmount(v.Value)}
	case NonFungibleToken:
		return Record{Kind: KindNonFungible, Contract: v.Contract, TokenID: v.TokenID, Amount: "0"}
	default:
		panic(fmt.Sprintf("asset: unknown variant %T", a))
	}
}

// FromRecord rebuilds the Asset described by r.
func FromRecord(r Record) (Asset, error) {
	switch r.Kind {
	case KindNative:
		amount, err := ParseAmount(r.Amount)
		if err != nil {
			return nil, err
		}
		return NewNative(amount), nil
	case KindFungible:
		amount, err := ParseAmount(r.Amount)
		if err != nil {
			return nil, err
		}
		return NewFungible(r.Contract, amount), nil
	case KindNonFungible:
		return NewNonFungible(r.Contract, r.TokenID), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidAsset, r.Kind)
	}
}

// Marshal encodes a as its Record JSON.
func Marshal(a Asset) ([]byte, error) {
	return json.Marshal(ToRecord(a))
}

// Unmarshal decodes Record JSON into an Asset.
func Unmarshal(data []byte) (Asset, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	return FromRecord(r)
}
