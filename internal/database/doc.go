// Package database provides connection pool management and schema
// migration for the PostgreSQL event journal.
//
// The journal is the only durable storage marketd has: every ledger
// event lands in the marketplace_events table. Ledger state itself
// (listings, proceeds) is in-memory and rebuilt from scratch on boot.
package database
