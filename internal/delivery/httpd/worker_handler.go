package httpd

import (
	"net/http"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// WorkerHandler serves health and metrics for the feedback worker process.
type WorkerHandler struct {
	worker worker.FeedbackWorker
	logger zerolog.Logger
}

func NewWorkerHandler(w worker.FeedbackWorker, logger zerolog.Logger) *WorkerHandler {
	return &WorkerHandler{
		worker: w,
		logger: logger,
	}
}

func (h *WorkerHandler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.Stats)
	router.Handle("/metrics", promhttp.Handler())
}

func (h *WorkerHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "feedback-worker",
		"timestamp": time.Now().UTC(),
	}

	if _, err := h.worker.QueueStats(); err != nil {
		h.logger.Warn().Err(err).Msg("Queue unreachable during health check")
		response["status"] = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *WorkerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"worker": h.worker.GetStats(),
	}

	queue, err := h.worker.QueueStats()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read queue stats")
	} else {
		response["queue"] = queue
	}

	writeSuccess(w, http.StatusOK, response)
}
