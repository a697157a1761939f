package token

import (
	"context"
	"errors"

	"github.com/apexbay/nftmarket/internal/model"
)

// ErrUnknownToken is returned for queries about tokens that do not exist.
var ErrUnknownToken = errors.New("unknown token")

// Registry answers ownership questions for one NFT collection and
// executes transfers. Implementations may call out of process.
type Registry interface {
	// OwnerOf returns the current owner of tokenID.
	OwnerOf(ctx context.Context, tokenID uint64) (model.Address, error)

	// GetApproved returns the address approved to transfer tokenID, or
	// the zero Address when none is set.
	GetApproved(ctx context.Context, tokenID uint64) (model.Address, error)

	// SafeTransferFrom moves tokenID from from to to. Implementations
	// may invoke arbitrary receiver callbacks before returning.
	SafeTransferFrom(ctx context.Context, from, to model.Address, tokenID uint64) error
}

// Resolver maps collection addresses to their registries.
type Resolver interface {
	// Collection returns the registry for addr, and whether it is known.
	Collection(addr model.Address) (Registry, bool)
}
