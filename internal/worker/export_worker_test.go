package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ritmo/internal/amqp"
	"ritmo/internal/core"
	"ritmo/internal/sheets"
	"ritmo/internal/storage"
)

type fakeJournal struct {
	entries []sheets.JournalEntry
	err     error
}

func (f *fakeJournal) Append(ctx context.Context, entry sheets.JournalEntry) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.entries = append(f.entries, entry)
	return "Journal!A1:D1", nil
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ritmo.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func recordTestCompletion(t *testing.T, repo *storage.SQLiteRepository, id string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	window := core.WeekWindowOf(now, time.Sunday)

	goal := core.Goal{ID: "g-" + id, Title: "Run", DesiredWeeklyFrequency: 7, CreatedAt: now}
	if err := repo.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	completion := core.Completion{ID: id, GoalID: goal.ID, CompletedAt: now}
	if err := repo.RecordCompletion(ctx, completion, window); err != nil {
		t.Fatalf("record completion: %v", err)
	}
}

func TestHandleCompletionMessage(t *testing.T) {
	repo := newTestRepo(t)
	recordTestCompletion(t, repo, "c-1")

	journal := &fakeJournal{}
	w := NewExportWorker(repo, journal, 10)

	msg := amqp.NewCompletionRecordedMessage("c-1")
	if err := w.HandleCompletionMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	if len(journal.entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(journal.entries))
	}
	if journal.entries[0].CompletionID != "c-1" || journal.entries[0].GoalTitle != "Run" {
		t.Fatalf("unexpected entry: %+v", journal.entries[0])
	}

	// Exported rows leave the pending set
	pending, err := repo.ListPendingExport(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending export: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending exports, got %d", len(pending))
	}
}

func TestHandleCompletionMessageUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	w := NewExportWorker(repo, &fakeJournal{}, 10)

	msg := amqp.NewCompletionRecordedMessage("missing")
	if err := w.HandleCompletionMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown completion id")
	}
}

func TestStartupExportCheckBackfillsPending(t *testing.T) {
	repo := newTestRepo(t)
	recordTestCompletion(t, repo, "c-1")

	journal := &fakeJournal{}
	w := NewExportWorker(repo, journal, 10)

	if err := w.StartupExportCheck(context.Background()); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if len(journal.entries) != 1 {
		t.Fatalf("expected 1 backfilled entry, got %d", len(journal.entries))
	}

	// A second run finds nothing left to export
	if err := w.StartupExportCheck(context.Background()); err != nil {
		t.Fatalf("second startup check: %v", err)
	}
	if len(journal.entries) != 1 {
		t.Fatalf("expected no duplicate exports, got %d entries", len(journal.entries))
	}
}

func TestExportFailureMarksError(t *testing.T) {
	repo := newTestRepo(t)
	recordTestCompletion(t, repo, "c-1")

	journal := &fakeJournal{err: errors.New("sheets unavailable")}
	w := NewExportWorker(repo, journal, 10)

	if err := w.ProcessPendingExports(context.Background()); err != nil {
		t.Fatalf("process pending should swallow per-row errors: %v", err)
	}

	// The errored row must not stay in the pending set forever
	pending, err := repo.ListPendingExport(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending export: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected errored row out of pending set, got %d", len(pending))
	}
}
