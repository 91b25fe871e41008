package httpd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger is a dependency probed by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	intakeService service.IntakeService
	checks        map[string]Pinger
	logger        zerolog.Logger
}

func NewHandler(intakeService service.IntakeService, checks map[string]Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		intakeService: intakeService,
		checks:        checks,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/submissions", func(r chi.Router) {
			r.Post("/", h.SubmitArtwork)
			r.Get("/{id}/status", h.GetSubmissionStatus)
		})

		api.Get("/queues/stats", h.GetQueueStats)
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dependencies := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if err := check.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			dependencies[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		dependencies[name] = "healthy"
	}

	response := map[string]interface{}{
		"status":       "healthy",
		"service":      "artwork-intake",
		"dependencies": dependencies,
		"timestamp":    time.Now().UTC(),
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}

	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody(status, message))
}

func errorBody(status int, message string) map[string]interface{} {
	return map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	}
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, status, response)
}
