package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RubachokBoss/artwork-feedback/internal/models"
	"github.com/RubachokBoss/artwork-feedback/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxSubmitBody = 1 << 20

func (h *Handler) SubmitArtwork(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.intakeService.Submit(r.Context(), &req)
	if err != nil {
		status, message := h.errorStatus(err)
		body := errorBody(status, message)
		// The row exists once an id was assigned, so the caller can still poll.
		if resp != nil {
			body["submission_id"] = resp.SubmissionID
		}
		writeJSON(w, status, body)
		return
	}

	writeSuccess(w, http.StatusAccepted, resp)
}

func (h *Handler) GetSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}

	resp, err := h.intakeService.GetStatus(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.intakeService.QueueStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue stats")
		writeError(w, http.StatusServiceUnavailable, "queue stats unavailable")
		return
	}

	writeSuccess(w, http.StatusOK, stats)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	status, message := h.errorStatus(err)
	writeError(w, status, message)
}

func (h *Handler) errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrSubmissionNotFound):
		return http.StatusNotFound, "submission not found"
	case errors.Is(err, service.ErrAssetFetch):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, service.ErrAssetStore), errors.Is(err, service.ErrEnqueue):
		h.logger.Error().Err(err).Msg("Submission accepted in degraded state")
		return http.StatusServiceUnavailable, err.Error()
	default:
		h.logger.Error().Err(err).Msg("Service error")
		return http.StatusInternalServerError, "Internal server error"
	}
}
