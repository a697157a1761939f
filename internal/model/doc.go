// Package model defines shared data types used across the marketplace
// service.
//
// Conventions:
//   - Prices and balances: *big.Int in the smallest currency unit
//   - Timestamps: int64 microseconds since Unix epoch
//   - Addresses: lowercase 0x-prefixed hex strings (Address)
//   - IDs: uuid.UUID for events, uint64 for token IDs
package model
