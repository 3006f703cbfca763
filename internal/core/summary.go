package core

import "time"

// CompletionEntry is one completion with its goal title, as listed in the
// weekly summary day buckets.
type CompletionEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completedAt"`
}

// WeekSummary aggregates the current week: completions recorded, total
// desired capacity across eligible goals, and completions bucketed by
// calendar day. GoalsPerDay is sparse; days without completions are absent.
type WeekSummary struct {
	Completed   int                          `json:"completed"`
	Total       int                          `json:"total"`
	GoalsPerDay map[string][]CompletionEntry `json:"goalsPerDay"`
}

// DateKey is the map key format for GoalsPerDay (ISO date, no time portion).
const DateKey = "2006-01-02"

// BuildGoalsPerDay buckets completions by the calendar date of CompletedAt.
// Entries must arrive ordered by completion time ascending; the fold keeps
// that order within each bucket. Grouping happens here rather than in SQL so
// the behavior stays portable across store choices.
func BuildGoalsPerDay(entries []CompletionEntry) map[string][]CompletionEntry {
	perDay := make(map[string][]CompletionEntry, len(entries))
	for _, e := range entries {
		key := e.CompletedAt.Format(DateKey)
		perDay[key] = append(perDay[key], e)
	}
	return perDay
}
