package settlement

import (
	"errors"

	"github.com/memohai/claimd/internal/asset"
	"github.com/memohai/claimd/internal/handle"
	"github.com/memohai/claimd/internal/proof"
	"github.com/memohai/claimd/internal/storage"
	"github.com/memohai/claimd/internal/transfer"
)

var (
	ErrUnauthorized      = errors.New("caller is not allowed to perform this operation")
	ErrPaused            = errors.New("service is paused")
	ErrAlreadyPaused     = errors.New("service is already paused")
	ErrNotPaused         = errors.New("service is not paused")
	ErrAlreadyLinked     = errors.New("handle already linked")
	ErrNotLinked         = errors.New("account must be linked before claiming")
	ErrNoPendingClaims   = errors.New("no pending claims to process")
	ErrClaimNotFound     = errors.New("claim not found")
	ErrAlreadySettled    = errors.New("tip has been claimed")
	ErrAlreadyReclaimed  = errors.New("tip has already been reclaimed")
	ErrNotExpired        = errors.New("claim is not yet expired")
	ErrTransferInFlight  = errors.New("a transfer for this claim is already in flight")
	ErrStaleContinuation = errors.New("continuation no longer matches claim state")
	ErrUnsupportedAsset  = errors.New("unsupported token")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrVerification      = errors.New("proof verification failed")
)

// ErrAlreadyInitialized is returned by New when the store belongs to a different owner.
var ErrAlreadyInitialized = storage.ErrAlreadyInitialized

// Category groups errors by who has to act on them.
type Category int

const (
	CategoryInternal Category = iota
	CategoryAuthorization
	CategoryState
	CategoryResource
	CategoryExternal
)

func (c Category) String() string {
	switch c {
	case CategoryAuthorization:
		return "authorization"
	case CategoryState:
		return "state"
	case CategoryResource:
		return "resource"
	case CategoryExternal:
		return "external"
	default:
		return "internal"
	}
}

var categories = []struct {
	category Category
	errs     []error
}{
	{CategoryAuthorization, []error{ErrUnauthorized}},
	{CategoryState, []error{
		ErrPaused, ErrAlreadyPaused, ErrNotPaused,
		ErrAlreadyLinked, ErrNotLinked, ErrNoPendingClaims,
		ErrClaimNotFound, ErrAlreadySettled, ErrAlreadyReclaimed, ErrNotExpired,
		ErrTransferInFlight, ErrStaleContinuation, ErrAlreadyInitialized,
		storage.ErrTokenNotFound, storage.ErrClaimNotFound, storage.ErrAlreadyLinked, storage.ErrNotInitialized,
	}},
	{CategoryResource, []error{
		ErrUnsupportedAsset, ErrInvalidRequest,
		handle.ErrEmptyPlatform, handle.ErrEmptyHandle, handle.ErrMalformedRouting, handle.ErrMalformedKey,
		asset.ErrInvalidAmount, asset.ErrZeroAmount, asset.ErrInvalidAsset,
		proof.ErrMalformed, proof.ErrStale,
	}},
	{CategoryExternal, []error{
		ErrVerification, proof.ErrRejected, proof.ErrVerifierFailed,
		transfer.ErrTransferFailed, transfer.ErrNoAdapter,
	}},
}

// CategoryOf classifies err; unknown errors are internal.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	for _, group := range categories {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.category
			}
		}
	}
	return CategoryInternal
}
