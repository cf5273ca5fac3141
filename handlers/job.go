package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/dto"
	"github.com/DaniUTP/remotion-backend/jobs"
	"github.com/DaniUTP/remotion-backend/middleware"
)

type JobService interface {
	Submit(ctx context.Context, inputProps map[string]interface{}) (*dto.RenderResponse, error)
	Status(ctx context.Context, id string) (*dto.JobResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
	Sweep(ctx context.Context) error
}

type JobHandler struct {
	service JobService
	logger  *zap.Logger
}

func NewJobHandler(service JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

func (h *JobHandler) Render(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var inputProps map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&inputProps); err != nil {
		h.handleError(w, "Invalid render payload", err, traceID, http.StatusBadRequest)
		return
	}
	if len(inputProps) == 0 {
		h.handleError(w, "Render payload must be a non-empty JSON object", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Submit(r.Context(), inputProps)
	if err != nil {
		h.handleError(w, "Failed to create render job", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Render job accepted",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.JobID),
	)

	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := strings.TrimPrefix(r.URL.Path, "/api/render-status/")
	if jobID == "" {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get job status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// Jobs sweeps expired records before reporting, so the listing reflects only
// live jobs.
func (h *JobHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if err := h.service.Sweep(r.Context()); err != nil {
		h.logger.Warn("Sweep before listing failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}

	h.stats(w, r, traceID)
}

func (h *JobHandler) JobsStats(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r, middleware.GetTraceID(r.Context()))
}

func (h *JobHandler) stats(w http.ResponseWriter, r *http.Request, traceID string) {
	resp, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleError(w, "Failed to aggregate job stats", err, traceID, http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
