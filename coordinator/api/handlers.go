package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.coordinator.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

// handleModules handles GET /api/v1/modules
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        s.coordinator.Modules(),
		LastUpdated: s.coordinator.Health().LastTick,
	})
}

// handleModule handles GET /api/v1/modules/{name}
func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, m := range s.coordinator.Modules() {
		if m.Config.Module == name || m.Status.Module == name {
			s.writeJSON(w, http.StatusOK, QueryResponse{Data: m, LastUpdated: m.Status.LastRun})
			return
		}
	}
	s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "module not found: " + name})
}

// handleModuleHistory handles GET /api/v1/modules/{name}/history?limit=N
func (s *Server) handleModuleHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	runs, err := s.coordinator.ModuleHistory(name, limit)
	switch {
	case errors.Is(err, ErrHistoryDisabled):
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		s.logger.Error().Err(err).Str("module", name).Msg("failed to load module history")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load module history"})
		return
	}

	var last time.Time
	if len(runs) > 0 {
		last = runs[0].StartedAt
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: runs, LastUpdated: last})
}

// handleFactory handles GET /api/v1/factory
func (s *Server) handleFactory(w http.ResponseWriter, r *http.Request) {
	info := s.coordinator.Factory()
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: info, LastUpdated: info.UpdatedAt})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

