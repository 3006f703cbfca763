package sheets

import (
	"context"
	"time"
)

// JournalEntry is one completed goal occurrence as it appears in the
// spreadsheet journal.
type JournalEntry struct {
	CompletionID string
	GoalTitle    string
	CompletedAt  time.Time
}

// Ports for outbound adapters.
type (
	// JournalWriter appends completed goal occurrences to an external
	// journal and returns a reference to the written row.
	JournalWriter interface {
		Append(ctx context.Context, entry JournalEntry) (rowRef string, err error)
	}
)
