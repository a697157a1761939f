package journal

import (
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the journal writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// eventRow represents a row to be inserted into the marketplace_events
// table.
type eventRow struct {
	EventID    uuid.UUID
	Type       string
	Collection string
	TokenID    int64
	Seller     string // empty = NULL
	Buyer      string // empty = NULL
	Price      string // decimal string, empty = NULL
	EmittedAt  int64  // Microseconds
	RecordedAt int64  // Microseconds
}

// Metrics holds counters for the writer.
type Metrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Rows skipped as duplicates
	Errors    int64 // Failed flushes
	Flushes   int64 // Successful flushes
	Dropped   int64 // Rows lost in failed flushes
}
