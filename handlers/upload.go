package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/dto"
	"github.com/DaniUTP/remotion-backend/middleware"
	"github.com/DaniUTP/remotion-backend/upload"
)

type UploadHandler struct {
	uploader upload.Uploader
	maxSize  int64
	logger   *zap.Logger
}

func NewUploadHandler(uploader upload.Uploader, maxSize int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploader: uploader,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// Upload stores a multipart file on the CDN with an auto-detected resource
// type and returns its URL. The temp file is removed on every path.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "Failed to get file", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxSize {
		h.handleError(w, "File too large", nil, traceID, http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp("", "upload-*")
	if err != nil {
		h.handleError(w, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		h.handleError(w, "Failed to write file", err, traceID, http.StatusInternalServerError)
		return
	}
	if err := tmp.Close(); err != nil {
		h.handleError(w, "Failed to write file", err, traceID, http.StatusInternalServerError)
		return
	}

	result, err := h.uploader.Upload(r.Context(), tmp.Name(), "auto", "")
	if err != nil {
		h.handleError(w, "Upload failed", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("File uploaded",
		zap.String("trace_id", traceID),
		zap.String("filename", header.Filename),
		zap.String("public_id", result.PublicID),
	)

	h.respondJSON(w, http.StatusOK, dto.UploadResponse{
		URL:      result.URL,
		PublicID: result.PublicID,
	})
}

func (h *UploadHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
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

func (h *UploadHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
