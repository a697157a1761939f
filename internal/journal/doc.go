// Package journal persists ledger events to PostgreSQL.
//
// The Writer consumes an event bus subscription, accumulates rows, and
// flushes them in batches (on size or on a timer). Inserts are keyed by
// event ID with ON CONFLICT DO NOTHING, so replays and duplicate
// deliveries are idempotent. Append-only: rows are never updated.
package journal
