// Package token defines the NFT registry collaborator: the external
// system that answers ownership queries and executes transfers.
//
// The ledger never takes custody of tokens. It consults a Registry for
// ownership and approval checks and invokes SafeTransferFrom at
// settlement, resolving the registry for each collection address
// through a Resolver.
//
// MemoryCollection is the in-process implementation used for local
// deployments and tests. Its transfer hook models the receiver
// callback of a safe transfer, which is the re-entry surface the
// ledger guards against.
package token
