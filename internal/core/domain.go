package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// MinWeeklyFrequency and MaxWeeklyFrequency bound how many times a goal
	// can be targeted per calendar week.
	MinWeeklyFrequency = 1
	MaxWeeklyFrequency = 7

	// MaxTitleLength caps goal titles at a size that still renders everywhere.
	MaxTitleLength = 200
)

type (
	// Goal is a tracked habit with a weekly completion target.
	// Goals are immutable after creation and are never deleted.
	Goal struct {
		ID                     string    `json:"id"`
		Title                  string    `json:"title"`
		DesiredWeeklyFrequency int       `json:"desiredWeeklyFrequency"`
		CreatedAt              time.Time `json:"createdAt"`
	}

	// Completion records that a goal was performed once.
	Completion struct {
		ID          string    `json:"id"`
		GoalID      string    `json:"goalId"`
		CompletedAt time.Time `json:"completedAt"`
	}

	// PendingGoal is a goal annotated with its completion count for the
	// current week. Goals already at capacity are still included; the caller
	// decides how to present them.
	PendingGoal struct {
		ID                     string `json:"id"`
		Title                  string `json:"title"`
		DesiredWeeklyFrequency int    `json:"desiredWeeklyFrequency"`
		CompletionCount        int    `json:"completionCount"`
	}
)

var (
	ErrGoalNotFound     = errors.New("goal not found")
	ErrCapacityExceeded = errors.New("goal already completed for the week")

	ErrEmptyTitle       = errors.New("empty title")
	ErrTitleTooLong     = errors.New("title too long (max 200 characters)")
	ErrInvalidFrequency = errors.New("desired weekly frequency must be between 1 and 7")
)

func (g Goal) Validate() error {
	if len(strings.TrimSpace(g.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(g.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if g.DesiredWeeklyFrequency < MinWeeklyFrequency || g.DesiredWeeklyFrequency > MaxWeeklyFrequency {
		return ErrInvalidFrequency
	}
	if g.CreatedAt.IsZero() {
		return errors.New("created at cannot be zero")
	}
	return nil
}
