package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ritmo/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository owns the goals and completions relations. Timestamps are
// stored as unix milliseconds so week-window comparisons stay plain integer
// range checks.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the store is reachable, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateGoal persists a new goal. Goals are immutable once written.
func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (id, title, desired_weekly_frequency, created_at)
		 VALUES (?, ?, ?, ?)`,
		g.ID, g.Title, g.DesiredWeeklyFrequency, g.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal saved",
		"id", g.ID,
		"title", g.Title,
		"desired_weekly_frequency", g.DesiredWeeklyFrequency)

	return nil
}

// GetGoal returns a single goal, or core.ErrGoalNotFound.
func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	var (
		g         core.Goal
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, desired_weekly_frequency, created_at FROM goals WHERE id = ?`,
		id).Scan(&g.ID, &g.Title, &g.DesiredWeeklyFrequency, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, core.ErrGoalNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	g.CreatedAt = time.UnixMilli(createdAt)
	return g, nil
}

// RecordCompletion inserts c only while the goal's in-window completion count
// is below its desired weekly frequency. The count and the insert are one
// statement inside one transaction, so concurrent recordings for the same
// goal cannot both pass the check; the weekly capacity invariant holds under
// any interleaving. On a conditional miss the same transaction reads the goal
// to distinguish ErrGoalNotFound from ErrCapacityExceeded.
func (r *SQLiteRepository) RecordCompletion(ctx context.Context, c core.Completion, window core.WeekWindow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO completions (id, goal_id, completed_at)
		 SELECT ?, g.id, ?
		 FROM goals g
		 WHERE g.id = ?
		   AND (SELECT COUNT(*) FROM completions c
		        WHERE c.goal_id = g.id AND c.completed_at BETWEEN ? AND ?)
		       < g.desired_weekly_frequency`,
		c.ID, c.CompletedAt.UnixMilli(), c.GoalID,
		window.Start.UnixMilli(), window.End.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM goals WHERE id = ?`, c.GoalID).Scan(&exists); err != nil {
			return fmt.Errorf("check goal existence: %w", err)
		}
		if exists == 0 {
			return core.ErrGoalNotFound
		}
		return core.ErrCapacityExceeded
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}

	slog.InfoContext(ctx, "Completion saved",
		"id", c.ID,
		"goal_id", c.GoalID,
		"completed_at", c.CompletedAt.Format(time.RFC3339))

	return nil
}

// ListPendingGoals returns every goal created on or before the window end,
// annotated with its in-window completion count. The left join keeps goals
// with zero completions in the result.
func (r *SQLiteRepository) ListPendingGoals(ctx context.Context, window core.WeekWindow) ([]core.PendingGoal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.title, g.desired_weekly_frequency, COUNT(c.id)
		 FROM goals g
		 LEFT JOIN completions c
		   ON c.goal_id = g.id AND c.completed_at BETWEEN ? AND ?
		 WHERE g.created_at <= ?
		 GROUP BY g.id, g.title, g.desired_weekly_frequency
		 ORDER BY g.created_at, g.id`,
		window.Start.UnixMilli(), window.End.UnixMilli(), window.End.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list pending goals: %w", err)
	}
	defer rows.Close()

	var goals []core.PendingGoal
	for rows.Next() {
		var pg core.PendingGoal
		if err := rows.Scan(&pg.ID, &pg.Title, &pg.DesiredWeeklyFrequency, &pg.CompletionCount); err != nil {
			return nil, fmt.Errorf("scan pending goal: %w", err)
		}
		goals = append(goals, pg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending goals: %w", err)
	}

	return goals, nil
}

// ReadWeekSummary gathers the three summary figures in one read transaction:
// in-window completion count, total desired capacity of eligible goals, and
// the completion listing ordered by completion time.
func (r *SQLiteRepository) ReadWeekSummary(ctx context.Context, window core.WeekWindow) (completed, total int, entries []core.CompletionEntry, err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, 0, nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	start, end := window.Start.UnixMilli(), window.End.UnixMilli()

	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completions WHERE completed_at BETWEEN ? AND ?`,
		start, end).Scan(&completed)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("count week completions: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(desired_weekly_frequency), 0) FROM goals WHERE created_at <= ?`,
		end).Scan(&total)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("sum desired frequency: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT c.id, g.title, c.completed_at
		 FROM completions c
		 JOIN goals g ON g.id = c.goal_id
		 WHERE c.completed_at BETWEEN ? AND ?
		 ORDER BY c.completed_at, c.id`,
		start, end)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("list week completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           core.CompletionEntry
			completedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &completedAt); err != nil {
			return 0, 0, nil, fmt.Errorf("scan week completion: %w", err)
		}
		e.CompletedAt = time.UnixMilli(completedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, nil, fmt.Errorf("iterate week completions: %w", err)
	}

	return completed, total, entries, nil
}

// JournalRow is what the export worker needs to append one journal line.
type JournalRow struct {
	ID          string
	Title       string
	CompletedAt time.Time
}

// GetJournalRow loads a completion joined with its goal title for export.
func (r *SQLiteRepository) GetJournalRow(ctx context.Context, completionID string) (JournalRow, error) {
	var (
		row         JournalRow
		completedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, g.title, c.completed_at
		 FROM completions c
		 JOIN goals g ON g.id = c.goal_id
		 WHERE c.id = ?`,
		completionID).Scan(&row.ID, &row.Title, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return JournalRow{}, fmt.Errorf("completion %s: %w", completionID, sql.ErrNoRows)
	}
	if err != nil {
		return JournalRow{}, fmt.Errorf("get journal row: %w", err)
	}
	row.CompletedAt = time.UnixMilli(completedAt)
	return row, nil
}

// ListPendingExport returns completions not yet written to the journal, oldest
// first. The worker uses this as a backfill in case AMQP messages were lost.
func (r *SQLiteRepository) ListPendingExport(ctx context.Context, limit int) ([]JournalRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, g.title, c.completed_at
		 FROM completions c
		 JOIN goals g ON g.id = c.goal_id
		 WHERE c.export_status = 'pending'
		 ORDER BY c.completed_at, c.id
		 LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	defer rows.Close()

	var pending []JournalRow
	for rows.Next() {
		var (
			row         JournalRow
			completedAt int64
		)
		if err := rows.Scan(&row.ID, &row.Title, &completedAt); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		row.CompletedAt = time.UnixMilli(completedAt)
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending export: %w", err)
	}

	return pending, nil
}

// MarkExported flags a completion as written to the journal.
func (r *SQLiteRepository) MarkExported(ctx context.Context, completionID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE completions SET export_status = 'exported' WHERE id = ?`,
		completionID); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Completion marked as exported", "id", completionID)
	return nil
}

// MarkExportError flags a completion whose journal append failed.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, completionID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE completions SET export_status = 'error' WHERE id = ?`,
		completionID); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Completion marked with export error", "id", completionID)
	return nil
}
