package token

import (
	"sync"

	"github.com/apexbay/nftmarket/internal/model"
)

// Directory is a thread-safe Resolver over registered collections.
type Directory struct {
	mu          sync.RWMutex
	collections map[model.Address]Registry
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{collections: make(map[model.Address]Registry)}
}

// Register adds or replaces the registry for addr.
func (d *Directory) Register(addr model.Address, reg Registry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.collections[addr] = reg
}

// Collection returns the registry for addr.
func (d *Directory) Collection(addr model.Address) (Registry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	reg, ok := d.collections[addr]
	return reg, ok
}

// Addresses returns the registered collection addresses.
func (d *Directory) Addresses() []model.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]model.Address, 0, len(d.collections))
	for addr := range d.collections {
		result = append(result, addr)
	}
	return result
}
