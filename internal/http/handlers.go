package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ritmo/internal/core"
	"ritmo/internal/log"
)

const maxBodyBytes = 1 << 16

type createGoalRequest struct {
	Title                  string `json:"title"`
	DesiredWeeklyFrequency int    `json:"desiredWeeklyFrequency"`
}

type recordCompletionRequest struct {
	GoalID string `json:"goalId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleReady verifies the backing store is reachable before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "storage unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := s.goals.CreateGoal(r.Context(), req.Title, req.DesiredWeeklyFrequency)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyTitle),
			errors.Is(err, core.ErrTitleTooLong),
			errors.Is(err, core.ErrInvalidFrequency):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to create goal",
				log.FieldError, err,
				log.FieldGoalTitle, req.Title,
				log.FieldOperation, "create_goal")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Goal created",
		log.FieldGoalID, goal.ID,
		log.FieldGoalTitle, goal.Title,
		log.FieldFrequency, goal.DesiredWeeklyFrequency)

	writeJSON(w, http.StatusCreated, map[string]core.Goal{"goal": goal})
}

func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req recordCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GoalID == "" {
		writeError(w, http.StatusBadRequest, "goalId is required")
		return
	}

	completion, err := s.goals.RecordCompletion(r.Context(), req.GoalID)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrGoalNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrCapacityExceeded):
			writeError(w, http.StatusConflict, err.Error())
		default:
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to record completion",
				log.FieldError, err,
				log.FieldGoalID, req.GoalID,
				log.FieldOperation, "record_completion")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Completion recorded",
		log.FieldGoalID, completion.GoalID,
		"completion_id", completion.ID)

	writeJSON(w, http.StatusCreated, map[string]core.Completion{"completion": completion})
}

func (s *Server) handlePendingGoals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	pending, err := s.goals.ListPendingGoals(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list pending goals",
			log.FieldError, err,
			log.FieldOperation, "list_pending_goals")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]core.PendingGoal{"pendingGoals": pending})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.goals.GetWeekSummary(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to build week summary",
			log.FieldError, err,
			log.FieldOperation, "week_summary")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]core.WeekSummary{"summary": summary})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
