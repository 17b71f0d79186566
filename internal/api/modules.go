package api

import "net/http"

// HandleModules is GET /v1/modules — lists the registered action modules
// with their config schemas so dashboards can render action editors.
func (s *Server) HandleModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modules": s.Registry.List()})
}
