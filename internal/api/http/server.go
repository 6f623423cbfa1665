package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maverika/maverika/internal/application/communication"
	appEVE "github.com/maverika/maverika/internal/application/eve"
	"github.com/maverika/maverika/internal/application/orchestrator"
	"github.com/maverika/maverika/internal/apperr"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	eveSvc       *appEVE.Service
	commSvc      *communication.Service
	metrics      http.Handler
	logger       zerolog.Logger
}

// NewServer wires the handlers. metrics may be nil.
func NewServer(
	orch *orchestrator.Orchestrator,
	eveSvc *appEVE.Service,
	commSvc *communication.Service,
	metrics http.Handler,
	logger zerolog.Logger,
) *Server {
	return &Server{
		orchestrator: orch,
		eveSvc:       eveSvc,
		commSvc:      commSvc,
		metrics:      metrics,
		logger:       logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// The message stream is long-lived and stays outside the timeout.
		r.Get("/eves/{eveId}/stream", s.streamMessages)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/companies/{companyId}", func(r chi.Router) {
				r.Post("/tasks", s.createTask)
				r.Post("/tasks/optimize", s.optimizeTasks)
				r.Post("/eves", s.createEVE)
				r.Get("/eves", s.listEVEs)
				r.Post("/eves/load", s.loadEVEs)
				r.Post("/workload/optimize", s.optimizeWorkload)
			})

			r.Route("/tasks/{taskId}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Post("/status", s.updateTaskStatus)
				r.Post("/cancel", s.cancelTask)
				r.Post("/reassign", s.reassignTask)
			})

			r.Route("/eves/{eveId}", func(r chi.Router) {
				r.Get("/", s.getEVEStatus)
				r.Get("/tasks", s.listEVETasks)
				r.Post("/tasks", s.assignTask)
				r.Put("/capabilities", s.updateCapabilities)
				r.Get("/messages", s.listMessages)
				r.Post("/messages", s.sendMessage)
				r.Post("/broadcast", s.broadcast)
			})

			r.Post("/messages/{messageId}/status", s.updateMessageStatus)
		})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondAppError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		s.logger.Error().Err(err).Msg("unclassified error")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		return
	}
	body := map[string]interface{}{
		"error":   string(ae.Kind),
		"message": ae.Msg,
	}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindInvalidAssignment:
		status = http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindCommunication:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("kind", string(ae.Kind)).Msg("request failed")
	}
	respondJSON(w, status, body)
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// actorFromRequest names the caller for task attribution. Identity is
// resolved upstream and forwarded in X-Actor.
func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
