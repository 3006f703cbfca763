package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ritmo/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ritmo.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreateGoal(t *testing.T, repo *SQLiteRepository, title string, freq int, createdAt time.Time) core.Goal {
	t.Helper()
	g := core.Goal{
		ID:                     uuid.NewString(),
		Title:                  title,
		DesiredWeeklyFrequency: freq,
		CreatedAt:              createdAt,
	}
	if err := repo.CreateGoal(context.Background(), g); err != nil {
		t.Fatalf("create goal %q: %v", title, err)
	}
	return g
}

func record(repo *SQLiteRepository, goalID string, at time.Time, window core.WeekWindow) error {
	return repo.RecordCompletion(context.Background(), core.Completion{
		ID:          uuid.NewString(),
		GoalID:      goalID,
		CompletedAt: at,
	}, window)
}

// Wednesday of a fixed week, sunday-start window around it.
var (
	testNow    = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	testWindow = core.WeekWindowOf(testNow, time.Sunday)
)

func TestRecordCompletionCapacity(t *testing.T) {
	repo := newTestRepo(t)
	goal := mustCreateGoal(t, repo, "Run", 3, testWindow.Start)

	for i := 0; i < 3; i++ {
		if err := record(repo, goal.ID, testNow.Add(time.Duration(i)*time.Hour), testWindow); err != nil {
			t.Fatalf("recording %d: %v", i+1, err)
		}
	}

	err := record(repo, goal.ID, testNow.Add(4*time.Hour), testWindow)
	if !errors.Is(err, core.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// the rejected write must leave the store unchanged
	completed, _, _, err := repo.ReadWeekSummary(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if completed != 3 {
		t.Fatalf("expected 3 completions after rejection, got %d", completed)
	}
}

func TestRecordCompletionUnknownGoal(t *testing.T) {
	repo := newTestRepo(t)

	err := record(repo, uuid.NewString(), testNow, testWindow)
	if !errors.Is(err, core.ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestRecordCompletionConcurrent(t *testing.T) {
	const (
		freq  = 3
		extra = 5
	)

	repo := newTestRepo(t)
	goal := mustCreateGoal(t, repo, "Meditate", freq, testWindow.Start)

	var successes, rejections atomic.Int32
	var g errgroup.Group
	for i := 0; i < freq+extra; i++ {
		g.Go(func() error {
			err := record(repo, goal.ID, testNow, testWindow)
			switch {
			case err == nil:
				successes.Add(1)
				return nil
			case errors.Is(err, core.ErrCapacityExceeded):
				rejections.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent recording: %v", err)
	}

	if got := successes.Load(); got != freq {
		t.Fatalf("expected exactly %d successful recordings, got %d", freq, got)
	}
	if got := rejections.Load(); got != extra {
		t.Fatalf("expected %d capacity rejections, got %d", extra, got)
	}

	completed, _, _, err := repo.ReadWeekSummary(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if completed != freq {
		t.Fatalf("expected %d stored completions, got %d", freq, completed)
	}
}

func TestRecordCompletionPreviousWeekDoesNotCount(t *testing.T) {
	repo := newTestRepo(t)
	lastWeek := core.WeekWindowOf(testNow.AddDate(0, 0, -7), time.Sunday)
	goal := mustCreateGoal(t, repo, "Stretch", 1, lastWeek.Start)

	if err := record(repo, goal.ID, lastWeek.Start.Add(time.Hour), lastWeek); err != nil {
		t.Fatalf("recording last week: %v", err)
	}
	// capacity resets with the new window
	if err := record(repo, goal.ID, testNow, testWindow); err != nil {
		t.Fatalf("recording this week: %v", err)
	}
	if err := record(repo, goal.ID, testNow.Add(time.Hour), testWindow); !errors.Is(err, core.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRecordCompletionWindowBoundaries(t *testing.T) {
	repo := newTestRepo(t)
	goal := mustCreateGoal(t, repo, "Write", 1, testWindow.Start)

	// a completion at the last instant of Saturday consumes capacity
	if err := record(repo, goal.ID, testWindow.End, testWindow); err != nil {
		t.Fatalf("recording at window end: %v", err)
	}

	// the next week's window does not see it
	nextWindow := core.WeekWindowOf(testNow.AddDate(0, 0, 7), time.Sunday)
	if err := record(repo, goal.ID, nextWindow.Start, nextWindow); err != nil {
		t.Fatalf("recording at next window start: %v", err)
	}
}

func TestListPendingGoals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := mustCreateGoal(t, repo, "Run", 3, testWindow.Start)
	read := mustCreateGoal(t, repo, "Read", 2, testWindow.Start.Add(time.Hour))
	// created after the window end: not yet due
	mustCreateGoal(t, repo, "Future", 1, testWindow.End.Add(time.Hour))

	if err := record(repo, run.ID, testNow, testWindow); err != nil {
		t.Fatalf("recording: %v", err)
	}

	pending, err := repo.ListPendingGoals(ctx, testWindow)
	if err != nil {
		t.Fatalf("list pending goals: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending goals, got %d", len(pending))
	}

	byID := map[string]core.PendingGoal{}
	for _, pg := range pending {
		byID[pg.ID] = pg
	}
	if got := byID[run.ID].CompletionCount; got != 1 {
		t.Fatalf("expected Run count 1, got %d", got)
	}
	// a goal with zero completions still appears
	if got, ok := byID[read.ID]; !ok || got.CompletionCount != 0 {
		t.Fatalf("expected Read with count 0, got %+v (present=%v)", got, ok)
	}
}

func TestListPendingGoalsIncludesGoalsAtCapacity(t *testing.T) {
	repo := newTestRepo(t)
	goal := mustCreateGoal(t, repo, "Run", 1, testWindow.Start)

	if err := record(repo, goal.ID, testNow, testWindow); err != nil {
		t.Fatalf("recording: %v", err)
	}

	pending, err := repo.ListPendingGoals(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("list pending goals: %v", err)
	}
	if len(pending) != 1 || pending[0].CompletionCount != 1 {
		t.Fatalf("goal at capacity must still be listed, got %+v", pending)
	}
}

func TestReadWeekSummaryEmpty(t *testing.T) {
	repo := newTestRepo(t)

	completed, total, entries, err := repo.ReadWeekSummary(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if completed != 0 || total != 0 || len(entries) != 0 {
		t.Fatalf("expected empty summary, got completed=%d total=%d entries=%d",
			completed, total, len(entries))
	}
}

func TestReadWeekSummary(t *testing.T) {
	repo := newTestRepo(t)
	goal := mustCreateGoal(t, repo, "Run", 3, testWindow.Start)
	mustCreateGoal(t, repo, "Read", 2, testWindow.Start)
	// excluded from total: created after window end
	mustCreateGoal(t, repo, "Future", 7, testWindow.End.Add(time.Hour))

	monday := testWindow.Start.AddDate(0, 0, 1).Add(8 * time.Hour)
	wednesday := testWindow.Start.AddDate(0, 0, 3).Add(19 * time.Hour)
	friday := testWindow.Start.AddDate(0, 0, 5).Add(7 * time.Hour)
	for _, at := range []time.Time{monday, wednesday, friday} {
		if err := record(repo, goal.ID, at, testWindow); err != nil {
			t.Fatalf("recording at %v: %v", at, err)
		}
	}

	completed, total, entries, err := repo.ReadWeekSummary(context.Background(), testWindow)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if completed != 3 {
		t.Fatalf("expected completed=3, got %d", completed)
	}
	if total != 5 {
		t.Fatalf("expected total=5 (3+2, future goal excluded), got %d", total)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CompletedAt.Before(entries[i-1].CompletedAt) {
			t.Fatalf("entries not in chronological order: %v", entries)
		}
	}
	if entries[0].Title != "Run" {
		t.Fatalf("expected joined title Run, got %q", entries[0].Title)
	}
}

func TestExportBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	goal := mustCreateGoal(t, repo, "Run", 3, testWindow.Start)

	c := core.Completion{ID: uuid.NewString(), GoalID: goal.ID, CompletedAt: testNow}
	if err := repo.RecordCompletion(ctx, c, testWindow); err != nil {
		t.Fatalf("recording: %v", err)
	}

	row, err := repo.GetJournalRow(ctx, c.ID)
	if err != nil {
		t.Fatalf("get journal row: %v", err)
	}
	if row.Title != "Run" {
		t.Fatalf("expected title Run, got %q", row.Title)
	}

	pending, err := repo.ListPendingExport(ctx, 10)
	if err != nil {
		t.Fatalf("list pending export: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != c.ID {
		t.Fatalf("expected 1 pending export for %s, got %+v", c.ID, pending)
	}

	if err := repo.MarkExported(ctx, c.ID); err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	pending, err = repo.ListPendingExport(ctx, 10)
	if err != nil {
		t.Fatalf("list pending export: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending exports, got %+v", pending)
	}
}
