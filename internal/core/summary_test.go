package core

import (
	"testing"
	"time"
)

func TestBuildGoalsPerDay(t *testing.T) {
	mon := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	wed := time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC)

	entries := []CompletionEntry{
		{ID: "c1", Title: "Run", CompletedAt: mon},
		{ID: "c2", Title: "Read", CompletedAt: mon.Add(4 * time.Hour)},
		{ID: "c3", Title: "Run", CompletedAt: wed},
	}

	perDay := BuildGoalsPerDay(entries)
	if len(perDay) != 2 {
		t.Fatalf("expected 2 day buckets, got %d", len(perDay))
	}

	monday := perDay["2025-03-10"]
	if len(monday) != 2 {
		t.Fatalf("expected 2 entries on monday, got %d", len(monday))
	}
	if monday[0].ID != "c1" || monday[1].ID != "c2" {
		t.Fatalf("monday entries out of order: %v", monday)
	}
	if len(perDay["2025-03-12"]) != 1 {
		t.Fatalf("expected 1 entry on wednesday")
	}
}

func TestBuildGoalsPerDayEmpty(t *testing.T) {
	perDay := BuildGoalsPerDay(nil)
	if perDay == nil {
		t.Fatal("expected non-nil map")
	}
	if len(perDay) != 0 {
		t.Fatalf("expected empty map, got %d buckets", len(perDay))
	}
}
