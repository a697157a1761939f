// Package server exposes the marketplace over HTTP.
//
// Listing, purchase, and withdrawal operations map onto the ledger
// under /api/v1; /ws upgrades to the WebSocket event feed; /healthz
// reports version, uptime, and component counters. Prices cross the
// wire as decimal strings in the smallest currency unit.
package server
