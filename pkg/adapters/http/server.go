// Package http exposes the engine operations over a thin JSON/HTTP
// adapter. It contains no workflow logic: every handler delegates to
// the engine and maps its error taxonomy onto status codes.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillflow/quillflow"
	"github.com/quillflow/quillflow/internal/logging"
	"github.com/quillflow/quillflow/pkg/domain"
)

// Server adapts the engine to HTTP.
type Server struct {
	engine *quillflow.Engine
	logger *slog.Logger
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine *quillflow.Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Route("/executions", func(r chi.Router) {
		r.Post("/", s.startExecution)
		r.Get("/", s.listExecutions)
		r.Route("/{executionID}", func(r chi.Router) {
			r.Get("/", s.getExecution)
			r.Post("/step", s.executeStep)
			r.Post("/run", s.run)
			r.Post("/input", s.submitInput)
			r.Post("/escalation", s.handleEscalation)
			r.Post("/abandon", s.abandon)
		})
	})
	r.Route("/plans", func(r chi.Router) {
		r.Get("/", s.listPlans)
		r.Get("/{planID}/{version}", s.getPlan)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type startRequest struct {
	PlanID        string         `json:"plan_id"`
	PlanVersion   string         `json:"plan_version"`
	InitialInputs map[string]any `json:"initial_inputs"`
}

type statusResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
}

func (s *Server) startExecution(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.engine.StartExecution(r.Context(), req.PlanID, req.PlanVersion, req.InitialInputs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, statusResponse{ExecutionID: id, Status: domain.StatusRunning})
}

func (s *Server) executeStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	status, err := s.engine.ExecuteStep(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{ExecutionID: id, Status: status})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	status, err := s.engine.RunToCompletionOrPause(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{ExecutionID: id, Status: status})
}

func (s *Server) submitInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := s.engine.SubmitUserInput(r.Context(), id, input)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{ExecutionID: id, Status: status})
}

type escalationRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleEscalation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	var req escalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	status, err := s.engine.HandleEscalationChoice(r.Context(), id, req.Choice)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{ExecutionID: id, Status: status})
}

func (s *Server) abandon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	status, err := s.engine.AbandonExecution(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{ExecutionID: id, Status: status})
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.GetExecutionStatus(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	filter := domain.ExecutionFilter{
		PlanID: r.URL.Query().Get("plan_id"),
		Status: domain.ExecutionStatus(r.URL.Query().Get("status")),
	}
	states, err := s.engine.ListExecutions(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	refs, err := s.engine.ListPlans()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refs)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.DescribePlan(chi.URLParam(r, "planID"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err)
	case domain.IsInvalidStateTransition(err):
		s.writeError(w, http.StatusConflict, err)
	case domain.IsValidationError(err), isMissingInputs(err):
		s.writeError(w, http.StatusBadRequest, err)
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func isMissingInputs(err error) bool {
	var me *domain.MissingInputsError
	return errors.As(err, &me)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}
