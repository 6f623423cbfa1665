package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/maverika/maverika/internal/domain/task"
)

type taskStatusRequest struct {
	Status task.Status     `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

type reassignRequest struct {
	EVEID string `json:"eveId"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	var in task.CreateInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if in.CreatedBy == "" {
		in.CreatedBy = actorFromRequest(r)
	}
	t, err := s.orchestrator.CreateTask(r.Context(), companyID, in)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	t, err := s.orchestrator.GetTask(r.Context(), taskID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	var req taskStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	t, err := s.orchestrator.UpdateTaskStatus(r.Context(), taskID, req.Status, req.Result, req.Error)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	t, err := s.orchestrator.CancelTask(r.Context(), taskID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) reassignTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid task id")
		return
	}
	var req reassignRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	eveID, err := uuid.Parse(req.EVEID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eveId")
		return
	}
	t, err := s.orchestrator.ReassignTask(r.Context(), taskID, eveID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) optimizeTasks(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	plan, err := s.orchestrator.OptimizeTaskDistribution(r.Context(), companyID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"assignments": plan})
}
