package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ritmo/internal/amqp"
	"ritmo/internal/core"
	"ritmo/internal/storage"
)

// GoalService implements the weekly goal-completion accounting operations on
// top of the SQLite repository, and notifies the journal export pipeline
// over AMQP. All week reasoning goes through one resolver with one
// configured start weekday.
type GoalService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	weekStart  time.Weekday

	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewGoalService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, weekStart time.Weekday) *GoalService {
	return &GoalService{
		storage:    storage,
		amqpClient: amqpClient,
		weekStart:  weekStart,
		now:        time.Now,
	}
}

func (s *GoalService) currentWeek() core.WeekWindow {
	return core.WeekWindowOf(s.now(), s.weekStart)
}

// CreateGoal validates and persists a new goal.
func (s *GoalService) CreateGoal(ctx context.Context, title string, desiredWeeklyFrequency int) (core.Goal, error) {
	goal := core.Goal{
		ID:                     uuid.NewString(),
		Title:                  title,
		DesiredWeeklyFrequency: desiredWeeklyFrequency,
		CreatedAt:              s.now(),
	}
	if err := goal.Validate(); err != nil {
		return core.Goal{}, err
	}
	if err := s.storage.CreateGoal(ctx, goal); err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	return goal, nil
}

// RecordCompletion records one completion for the goal, rejecting the write
// when the goal has no weekly capacity left. On success a journal export
// event is published; publish failures are logged and never fail the
// request, the export worker backfills from the database.
func (s *GoalService) RecordCompletion(ctx context.Context, goalID string) (core.Completion, error) {
	now := s.now()
	window := core.WeekWindowOf(now, s.weekStart)

	completion := core.Completion{
		ID:          uuid.NewString(),
		GoalID:      goalID,
		CompletedAt: now,
	}
	if err := s.storage.RecordCompletion(ctx, completion, window); err != nil {
		return core.Completion{}, err
	}

	if err := s.publishCompletionRecorded(ctx, completion.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish completion message",
			"id", completion.ID, "error", err)
	}

	return completion, nil
}

// ListPendingGoals lists every goal due this week with its in-window
// completion count. Goals with zero completions are included.
func (s *GoalService) ListPendingGoals(ctx context.Context) ([]core.PendingGoal, error) {
	pending, err := s.storage.ListPendingGoals(ctx, s.currentWeek())
	if err != nil {
		return nil, fmt.Errorf("list pending goals: %w", err)
	}
	if pending == nil {
		pending = []core.PendingGoal{}
	}
	return pending, nil
}

// GetWeekSummary aggregates the current week. An empty store yields the
// well-defined zero summary, never an error.
func (s *GoalService) GetWeekSummary(ctx context.Context) (core.WeekSummary, error) {
	completed, total, entries, err := s.storage.ReadWeekSummary(ctx, s.currentWeek())
	if err != nil {
		return core.WeekSummary{}, fmt.Errorf("read week summary: %w", err)
	}
	return core.WeekSummary{
		Completed:   completed,
		Total:       total,
		GoalsPerDay: core.BuildGoalsPerDay(entries),
	}, nil
}

func (s *GoalService) publishCompletionRecorded(ctx context.Context, completionID string) error {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping completion message")
		return nil
	}
	return s.amqpClient.PublishCompletionRecorded(ctx, completionID)
}

// Close closes both storage and AMQP connections.
func (s *GoalService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close goal service: %v", errs)
	}
	return nil
}
