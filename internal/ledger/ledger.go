package ledger

import (
	"context"
	"math/big"

	"github.com/apexbay/nftmarket/internal/model"
)

// EventSink receives ledger events in commit order. Publish is called
// while the ledger lock is held and must not block.
type EventSink interface {
	Publish(model.Event)
}

// Stats is a snapshot of ledger counters.
type Stats struct {
	ActiveListings      int      // Listings currently live
	Sales               int64    // Completed purchases
	Cancellations       int64    // Listings taken down by their owner
	PriceUpdates        int64    // Successful price raises
	Withdrawals         int64    // Completed payouts
	ReentrantRejections int64    // Mutations rejected mid-settlement
	Custody             *big.Int // Sum of all withdrawable balances
	Volume              *big.Int // Sum of all payments received
}

// Ledger is the marketplace settlement state machine.
//
// Prices and payments are non-negative integers in the smallest
// currency unit. Failures are always *Error and never change state.
type Ledger interface {
	// ListItem puts an NFT up for sale at price. The caller must own
	// the token and have approved the marketplace operator for it; the
	// token itself stays with the seller.
	ListItem(ctx context.Context, collection model.Address, tokenID uint64, price *big.Int, caller model.Address) error

	// CancelListing takes an active listing down. Only the token's
	// current owner may cancel.
	CancelListing(ctx context.Context, collection model.Address, tokenID uint64, caller model.Address) error

	// UpdateListingPrice raises the asking price of an active listing.
	// The new price must exceed the current one.
	UpdateListingPrice(ctx context.Context, collection model.Address, tokenID uint64, newPrice *big.Int, caller model.Address) error

	// BuyItem purchases an active listing. The full payment, including
	// any overpayment, is credited to the seller's proceeds before the
	// token is transferred to the caller.
	BuyItem(ctx context.Context, collection model.Address, tokenID uint64, payment *big.Int, caller model.Address) error

	// WithdrawProceeds pays out the caller's accumulated balance and
	// returns the amount withdrawn.
	WithdrawProceeds(ctx context.Context, caller model.Address) (*big.Int, error)

	// GetListing returns the active listing, or a zero-price Listing
	// when none exists.
	GetListing(collection model.Address, tokenID uint64) model.Listing

	// GetProceeds returns the withdrawable balance for seller, zero
	// when none. The caller receives a copy.
	GetProceeds(seller model.Address) *big.Int

	// Stats returns a snapshot of operational counters.
	Stats() Stats
}
