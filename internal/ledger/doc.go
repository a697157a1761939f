// Package ledger implements the marketplace settlement state machine.
//
// The ledger owns two books: active listings keyed by (collection,
// token ID) and withdrawable sale proceeds keyed by seller. Every
// operation, reads included, serializes on one internal lock, so each
// appears atomic to concurrent callers.
//
// Settlement discipline:
//   - Local state is written before the external transfer is invoked,
//     and rolled back if the transfer fails. No partial outcome
//     survives a failed operation.
//   - While a transfer or payout is in flight, the ledger rejects any
//     mutating operation with KindReentrantCall instead of queueing
//     it. This covers nested calls made from inside transfer hooks.
//   - Registry and payer implementations must not call the ledger's
//     read methods from a transfer hook on the same goroutine; the
//     lock is held for the duration of the operation.
//
// Failures are always *Error values carrying the failure Kind and the
// identifying context. A failed operation changes nothing.
package ledger
