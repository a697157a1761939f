package model

import (
	"math/big"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Ledger Types
// -----------------------------------------------------------------------------

// TokenKey identifies a single NFT by collection address and token ID.
// It is comparable and used directly as a map key.
type TokenKey struct {
	Collection Address // Collection contract address
	TokenID    uint64  // Token ID within the collection
}

// Listing is an active sale offer for one NFT.
//
// A nil or zero Price means no listing: the ledger never stores
// zero-priced listings, so price zero doubles as the absence sentinel.
type Listing struct {
	Price  *big.Int // Asking price (smallest currency unit)
	Seller Address  // Address that created the listing
}

// Active reports whether the listing represents a live offer.
func (l Listing) Active() bool {
	return l.Price != nil && l.Price.Sign() > 0
}

// -----------------------------------------------------------------------------
// Event Types
// -----------------------------------------------------------------------------

// Event types emitted by the ledger.
const (
	EventItemListed   = "item_listed"
	EventItemCanceled = "item_canceled"
	EventItemBought   = "item_bought"
)

// Event is the wire record for one ledger state transition. It is the
// form consumed by the WebSocket feed and the Postgres journal.
type Event struct {
	ID         uuid.UUID `json:"event_id"`         // Unique event ID
	Type       string    `json:"type"`             // item_listed, item_canceled, item_bought
	Collection Address   `json:"collection"`       // Collection contract address
	TokenID    uint64    `json:"token_id"`         // Token ID
	Seller     Address   `json:"seller,omitempty"` // Listing seller (listed, canceled)
	Buyer      Address   `json:"buyer,omitempty"`  // Buyer (bought)
	Price      string    `json:"price,omitempty"`  // Decimal string, smallest unit (listed, bought)
	EmittedAt  int64     `json:"emitted_at"`       // Emission time (µs since epoch)
}

// Key returns the token key the event refers to.
func (e Event) Key() TokenKey {
	return TokenKey{Collection: e.Collection, TokenID: e.TokenID}
}
