package ledger

import (
	"math/big"
	"sync"

	"github.com/apexbay/nftmarket/internal/model"
)

// ledgerState holds the mutex-guarded marketplace books.
type ledgerState struct {
	mu sync.Mutex

	// Active listings indexed by token key.
	listings map[model.TokenKey]model.Listing

	// Withdrawable sale proceeds per seller.
	proceeds map[model.Address]*big.Int

	// Operation counters (guarded by mu).
	sales         int64
	cancellations int64
	priceUpdates  int64
	withdrawals   int64
	volume        *big.Int
}

func newState() *ledgerState {
	return &ledgerState{
		listings: make(map[model.TokenKey]model.Listing),
		proceeds: make(map[model.Address]*big.Int),
		volume:   new(big.Int),
	}
}

// listingLocked returns the active listing for key (caller must hold mu).
func (s *ledgerState) listingLocked(key model.TokenKey) (model.Listing, bool) {
	l, ok := s.listings[key]
	return l, ok
}

// putListingLocked stores a listing (caller must hold mu).
func (s *ledgerState) putListingLocked(key model.TokenKey, l model.Listing) {
	s.listings[key] = l
}

// deleteListingLocked removes a listing (caller must hold mu).
func (s *ledgerState) deleteListingLocked(key model.TokenKey) {
	delete(s.listings, key)
}

// creditLocked adds amount to addr's withdrawable balance (caller must
// hold mu).
func (s *ledgerState) creditLocked(addr model.Address, amount *big.Int) {
	bal, ok := s.proceeds[addr]
	if !ok {
		bal = new(big.Int)
		s.proceeds[addr] = bal
	}
	bal.Add(bal, amount)
}

// debitLocked subtracts amount from addr's balance, removing the entry
// at zero so absence and zero stay interchangeable (caller must hold
// mu).
func (s *ledgerState) debitLocked(addr model.Address, amount *big.Int) {
	bal, ok := s.proceeds[addr]
	if !ok {
		return
	}
	bal.Sub(bal, amount)
	if bal.Sign() <= 0 {
		delete(s.proceeds, addr)
	}
}

// balanceLocked returns a copy of addr's withdrawable balance (caller
// must hold mu).
func (s *ledgerState) balanceLocked(addr model.Address) *big.Int {
	if bal, ok := s.proceeds[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// custodyLocked returns the sum of all withdrawable balances (caller
// must hold mu).
func (s *ledgerState) custodyLocked() *big.Int {
	total := new(big.Int)
	for _, bal := range s.proceeds {
		total.Add(total, bal)
	}
	return total
}
