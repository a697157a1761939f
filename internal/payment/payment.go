// Package payment defines the outbound currency collaborator used to
// settle proceeds withdrawals.
package payment

import (
	"context"
	"math/big"
	"sync"

	"github.com/apexbay/nftmarket/internal/model"
)

// Payer executes outbound currency transfers to withdrawing sellers.
type Payer interface {
	// Pay transfers amount (smallest currency unit) to to.
	Pay(ctx context.Context, to model.Address, amount *big.Int) error
}

// PayerFunc adapts a function to the Payer interface.
type PayerFunc func(ctx context.Context, to model.Address, amount *big.Int) error

// Pay calls f.
func (f PayerFunc) Pay(ctx context.Context, to model.Address, amount *big.Int) error {
	return f(ctx, to, amount)
}

// MemoryBank is a Payer that records cumulative payouts in memory. It
// never fails.
type MemoryBank struct {
	mu   sync.Mutex
	paid map[model.Address]*big.Int
}

// NewMemoryBank returns an empty bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{paid: make(map[model.Address]*big.Int)}
}

// Pay records a payout to to.
func (b *MemoryBank) Pay(ctx context.Context, to model.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.paid[to]
	if !ok {
		bal = new(big.Int)
		b.paid[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// Paid returns the total paid out to to.
func (b *MemoryBank) Paid(to model.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bal, ok := b.paid[to]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalPaid returns the sum of all payouts.
func (b *MemoryBank) TotalPaid() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := new(big.Int)
	for _, bal := range b.paid {
		total.Add(total, bal)
	}
	return total
}
