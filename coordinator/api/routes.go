package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/modules", s.handleModules).Methods("GET")
	v1.HandleFunc("/modules/{name}", s.handleModule).Methods("GET")
	v1.HandleFunc("/modules/{name}/history", s.handleModuleHistory).Methods("GET")
	v1.HandleFunc("/factory", s.handleFactory).Methods("GET")

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}
