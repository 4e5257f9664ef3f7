// Package httpx provides HTTP handlers and utilities for the generation API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/data"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	"github.com/talkingphoto/pipeline/internal/service"
)

// GenerationHandlers provides HTTP handlers for generation job operations.
type GenerationHandlers struct {
	Orchestrator *service.Orchestrator
	Jobs         core.JobRepository
	Ledger       core.CreditLedger
}

// CreateGeneration validates and enqueues a new generation job.
func (h *GenerationHandlers) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req model.GenerationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Orchestrator.Submit(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// GetGeneration returns the current state of a generation job, including
// weighted progress.
func (h *GenerationHandlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	job, err := h.Jobs.GetByID(r.Context(), id)
	if errors.Is(err, data.ErrJobNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
		return
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "query_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelGeneration flags a running job for cancellation. The executing worker
// observes the flag, refunds unconsumed credits, and finalizes the job.
func (h *GenerationHandlers) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !DecodeJSON(w, r, &body) {
		return
	}
	if body.Reason == "" {
		body.Reason = "user requested"
	}

	accepted, err := h.Jobs.RequestCancel(r.Context(), id, body.Reason)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "cancel_failed", Err: err})
		return
	}
	if !accepted {
		WriteError(w, ErrorParams{
			Code:    http.StatusConflict,
			ErrCode: "not_cancellable",
			Err:     errors.New("job is already finished or does not exist"),
		})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// ListGenerations returns the requesting user's jobs, newest first.
func (h *GenerationHandlers) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: errors.New("user_id is required")})
		return
	}
	limit := parseIntQuery(r, "limit", 50)

	jobs, err := h.Jobs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "query_failed", Err: err})
		return
	}
	if jobs == nil {
		jobs = []*model.GenerationJob{}
	}

	WriteJSON(w, http.StatusOK, jobs)
}

// GetBalance returns the user's current credit balance.
func (h *GenerationHandlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("user id is required")})
		return
	}

	balance, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "query_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}
