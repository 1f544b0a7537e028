package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type batchCreateRequest struct {
	Name               string   `json:"name"`
	SourceURLs         []string `json:"source_urls"`
	Prompt             string   `json:"prompt"`
	SelectionMode      string   `json:"selection_mode"` // model_pool | image_ids
	ModelProfileID     string   `json:"model_profile_id"`
	ImageIDs           []string `json:"image_ids"`
	DefaultCaption     string   `json:"default_caption"`
	DefaultPublishMode string   `json:"default_publish_mode"`
}

type pipelineBatchCreateRequest struct {
	Name               string               `json:"name"`
	Steps              []model.PipelineStep `json:"steps"`
	SourceURL          string               `json:"source_url"`
	ProfileIDs         []string             `json:"profile_ids"`
	DefaultCaption     string               `json:"default_caption"`
	DefaultPublishMode string               `json:"default_publish_mode"`
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			User     string `json:"user"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if !s.auth.CheckCredentials(req.User, req.Password) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "Failed to mint session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// webhookHandler applies an out-of-band terminal update from the backend.
// Delivery is at-least-once, so replays of the same payload must land as
// no-ops; the executor guarantees that.
func (s *Server) webhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JobID     string  `json:"job_id"`
			OutputURL string  `json:"output_url"`
			Error     *string `json:"error"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.JobID == "" {
			http.Error(w, "job_id is required", http.StatusBadRequest)
			return
		}

		err := s.executor.CompleteFromWebhook(r.Context(), req.JobID, req.OutputURL, req.Error)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to apply webhook", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) batchCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		batch, err := s.batchUC.CreateBatch(r.Context(), usecase.CreateBatchParams{
			Name:               req.Name,
			SourceURLs:         req.SourceURLs,
			Prompt:             req.Prompt,
			SelectionMode:      model.ImageSelectionMode(req.SelectionMode),
			ModelProfileID:     req.ModelProfileID,
			ImageIDs:           req.ImageIDs,
			DefaultCaption:     req.DefaultCaption,
			DefaultPublishMode: req.DefaultPublishMode,
		})
		if err != nil {
			writeUseCaseError(w, err)
			return
		}

		s.startProcessing(batch.ID)
		writeJSON(w, http.StatusAccepted, batch)
	}
}

func (s *Server) pipelineBatchCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipelineBatchCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		batch, err := s.batchUC.CreatePipelineBatch(r.Context(), usecase.PipelineTemplate{
			Name:               req.Name,
			Steps:              req.Steps,
			SourceURL:          req.SourceURL,
			DefaultCaption:     req.DefaultCaption,
			DefaultPublishMode: req.DefaultPublishMode,
		}, req.ProfileIDs)
		if err != nil {
			writeUseCaseError(w, err)
			return
		}

		s.startProcessing(batch.ID)
		writeJSON(w, http.StatusAccepted, batch)
	}
}

// startProcessing dispatches the batch detached from the request: fan-out
// runs for minutes and must not die with the client connection.
func (s *Server) startProcessing(batchID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if err := s.batchUC.ProcessBatch(ctx, batchID); err != nil {
			s.log.Error().Err(err).Str("batch_id", batchID).Msg("batch processing failed")
		}
	}()
}

func (s *Server) batchGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch, err := s.batches.FindByID(r.Context(), repository.NoTX, chi.URLParam(r, "id"))
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batch)
	}
}

func (s *Server) batchJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := s.jobs.ListByBatch(r.Context(), repository.NoTX, chi.URLParam(r, "id"))
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		response := struct {
			Data []*model.Job `json:"data"`
		}{Data: jobs}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) draftCaptionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caption, err := s.reviewUC.DraftCaption(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"caption": caption})
	}
}

func (s *Server) jobGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.jobs.FindByID(r.Context(), repository.NoTX, chi.URLParam(r, "id"))
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) reviewActionHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")

		var err error
		switch action {
		case "approve":
			err = s.reviewUC.Approve(r.Context(), jobID)
		case "reject":
			err = s.reviewUC.Reject(r.Context(), jobID)
		case "repost":
			err = s.reviewUC.Repost(r.Context(), jobID)
		}
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) setOverridesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Caption     *string    `json:"caption"`
			PublishMode *string    `json:"publish_mode"`
			ScheduledAt *time.Time `json:"scheduled_at"`
			Timezone    *string    `json:"timezone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		err := s.reviewUC.SetOverrides(r.Context(), chi.URLParam(r, "id"), model.PublishOverrides{
			Caption:     req.Caption,
			PublishMode: req.PublishMode,
			ScheduledAt: req.ScheduledAt,
			Timezone:    req.Timezone,
		})
		if err != nil {
			writeUseCaseError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) resetOverridesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.reviewUC.ResetOverrides(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeUseCaseError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeUseCaseError maps domain errors onto HTTP statuses.
func writeUseCaseError(w http.ResponseWriter, err error) {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument), errors.As(err, &cfgErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyReviewed),
		errors.Is(err, domain.ErrJobNotCompleted),
		errors.Is(err, domain.ErrNotPosted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrLockNotAcquired):
		http.Error(w, "Job is being reviewed elsewhere", http.StatusLocked)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
