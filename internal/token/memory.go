package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/apexbay/nftmarket/internal/model"
)

// TransferHook runs after a MemoryCollection transfer has been applied.
// It models the receiver callback of a safe transfer: a hook error
// reverts the transfer.
type TransferHook func(ctx context.Context, from, to model.Address, tokenID uint64) error

// MemoryCollection is an in-memory Registry used for local deployments
// and tests.
type MemoryCollection struct {
	mu        sync.Mutex
	owners    map[uint64]model.Address
	approvals map[uint64]model.Address
	hook      TransferHook
}

// NewMemoryCollection returns an empty collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		owners:    make(map[uint64]model.Address),
		approvals: make(map[uint64]model.Address),
	}
}

// Mint assigns tokenID to owner. Minting an existing token fails.
func (c *MemoryCollection) Mint(owner model.Address, tokenID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[tokenID]; ok {
		return fmt.Errorf("token %d already minted", tokenID)
	}
	c.owners[tokenID] = owner
	return nil
}

// Approve lets operator transfer tokenID. The zero Address clears the
// approval.
func (c *MemoryCollection) Approve(operator model.Address, tokenID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[tokenID]; !ok {
		return ErrUnknownToken
	}
	if operator.IsZero() {
		delete(c.approvals, tokenID)
		return nil
	}
	c.approvals[tokenID] = operator
	return nil
}

// SetTransferHook installs a callback invoked after each transfer.
func (c *MemoryCollection) SetTransferHook(hook TransferHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

// OwnerOf returns the current owner of tokenID.
func (c *MemoryCollection) OwnerOf(ctx context.Context, tokenID uint64) (model.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[tokenID]
	if !ok {
		return "", ErrUnknownToken
	}
	return owner, nil
}

// GetApproved returns the approved operator for tokenID.
func (c *MemoryCollection) GetApproved(ctx context.Context, tokenID uint64) (model.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[tokenID]; !ok {
		return "", ErrUnknownToken
	}
	return c.approvals[tokenID], nil
}

// SafeTransferFrom moves tokenID to to and clears its approval. The
// transfer hook runs outside the collection lock, after ownership has
// moved, so it observes the completed transfer; if the hook fails the
// transfer is reverted.
func (c *MemoryCollection) SafeTransferFrom(ctx context.Context, from, to model.Address, tokenID uint64) error {
	c.mu.Lock()
	owner, ok := c.owners[tokenID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownToken
	}
	if owner != from {
		c.mu.Unlock()
		return fmt.Errorf("transfer from %s: token %d owned by %s", from, tokenID, owner)
	}
	if to.IsZero() {
		c.mu.Unlock()
		return fmt.Errorf("transfer token %d to the zero address", tokenID)
	}

	prevApproval := c.approvals[tokenID]
	c.owners[tokenID] = to
	delete(c.approvals, tokenID)
	hook := c.hook
	c.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, to, tokenID); err != nil {
		c.mu.Lock()
		c.owners[tokenID] = from
		if !prevApproval.IsZero() {
			c.approvals[tokenID] = prevApproval
		}
		c.mu.Unlock()
		return fmt.Errorf("receiver rejected token %d: %w", tokenID, err)
	}
	return nil
}
