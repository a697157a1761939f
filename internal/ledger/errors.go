package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/apexbay/nftmarket/internal/model"
)

// Kind classifies a settlement failure.
type Kind string

// Failure kinds. Every rejected operation maps to exactly one.
const (
	KindAlreadyListed        Kind = "already_listed"
	KindNotOwner             Kind = "not_owner"
	KindPriceMustBeAboveZero Kind = "price_must_be_above_zero"
	KindNotApproved          Kind = "not_approved_for_marketplace"
	KindNotListed            Kind = "not_listed"
	KindPriceNotMet          Kind = "price_not_met"
	KindNoProceeds           Kind = "no_proceeds"
	KindTransferFailed       Kind = "transfer_failed"
	KindReentrantCall        Kind = "reentrant_call"
)

// Error is a settlement failure with the context needed to act on it.
type Error struct {
	Kind       Kind
	Collection model.Address // Collection involved, if any
	TokenID    uint64        // Token involved, if any
	Caller     model.Address // Address that issued the operation
	Price      *big.Int      // Listing price or withdraw amount, when known
	Offered    *big.Int      // Submitted payment or new price, when distinct
	cause      error         // Underlying collaborator error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoProceeds:
		return fmt.Sprintf("%s: no withdrawable proceeds for %s", e.Kind, e.Caller)
	case KindPriceNotMet:
		return fmt.Sprintf("%s: %s token %d asks %s, offered %s",
			e.Kind, e.Collection, e.TokenID, e.Price, e.Offered)
	case KindTransferFailed:
		if e.Collection.IsZero() {
			return fmt.Sprintf("%s: payout of %s to %s: %v", e.Kind, e.Price, e.Caller, e.cause)
		}
		return fmt.Sprintf("%s: %s token %d: %v", e.Kind, e.Collection, e.TokenID, e.cause)
	default:
		if e.Collection.IsZero() {
			return fmt.Sprintf("%s (caller %s)", e.Kind, e.Caller)
		}
		return fmt.Sprintf("%s: %s token %d (caller %s)", e.Kind, e.Collection, e.TokenID, e.Caller)
	}
}

// Unwrap returns the underlying collaborator error, if any.
func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is a ledger Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
