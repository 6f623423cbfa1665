package httpapi

import (
	"net/http"

	appEVE "github.com/maverika/maverika/internal/application/eve"
	"github.com/maverika/maverika/internal/domain/task"
)

type capabilitiesRequest struct {
	Capabilities []string `json:"capabilities"`
}

func (s *Server) createEVE(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	var cfg appEVE.Config
	if err := decodeBody(r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	e, err := s.eveSvc.CreateEVE(r.Context(), companyID, cfg)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) listEVEs(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": s.eveSvc.ActiveWorkers(companyID)})
}

func (s *Server) loadEVEs(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	n, err := s.eveSvc.LoadCompany(r.Context(), companyID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"loaded": n})
}

func (s *Server) optimizeWorkload(w http.ResponseWriter, r *http.Request) {
	companyID, err := parseUUIDParam(r, "companyId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid company id")
		return
	}
	plan, err := s.eveSvc.OptimizeWorkload(r.Context(), companyID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"assignments": plan})
}

func (s *Server) getEVEStatus(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	st, err := s.eveSvc.GetEVEStatus(r.Context(), eveID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) listEVETasks(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	tasks, err := s.orchestrator.ListWorkerTasks(r.Context(), eveID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": tasks})
}

func (s *Server) assignTask(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
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
	t, err := s.eveSvc.AssignTask(r.Context(), eveID, in)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) updateCapabilities(w http.ResponseWriter, r *http.Request) {
	eveID, err := parseUUIDParam(r, "eveId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid eve id")
		return
	}
	var req capabilitiesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	e, err := s.eveSvc.UpdateEVECapabilities(r.Context(), eveID, req.Capabilities)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}
