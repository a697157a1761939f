package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the marketplace event journal. Idempotent: safe to apply
// on every boot.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS marketplace_events (
		event_id    UUID PRIMARY KEY,
		event_type  TEXT NOT NULL,
		collection  TEXT NOT NULL,
		token_id    BIGINT NOT NULL,
		seller      TEXT,
		buyer       TEXT,
		price       NUMERIC,
		emitted_at  BIGINT NOT NULL,
		recorded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS marketplace_events_token_idx
		ON marketplace_events (collection, token_id)`,
	`CREATE INDEX IF NOT EXISTS marketplace_events_emitted_at_idx
		ON marketplace_events (emitted_at)`,
}

// Migrate applies the journal schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}

	logger.Info("database schema up to date", "statements", len(migrations))
	return nil
}
