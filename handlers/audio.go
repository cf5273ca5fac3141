package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/audio"
	"github.com/DaniUTP/remotion-backend/dto"
	"github.com/DaniUTP/remotion-backend/middleware"
)

type AudioHandler struct {
	builder *audio.Builder
	logger  *zap.Logger
}

func NewAudioHandler(builder *audio.Builder, logger *zap.Logger) *AudioHandler {
	return &AudioHandler{
		builder: builder,
		logger:  logger,
	}
}

type generateAudiosRequest struct {
	Items []map[string]interface{} `json:"items"`
}

func (h *AudioHandler) Generate(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req generateAudiosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		h.handleError(w, "items must be a non-empty array", nil, traceID, http.StatusBadRequest)
		return
	}

	items, err := h.builder.Build(req.Items)
	if err != nil {
		h.logger.Error("Audio manifest generation failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(dto.ErrorResponse{
			Error:   "Audio generation failed",
			Detail:  err.Error(),
			TraceID: traceID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(items)
}

func (h *AudioHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
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
