package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conductor-html/conductor/internal/dispatch"
)

// registryFor picks the command registry a request addresses: the
// named document's when ?documentID= is set, the shared baseline
// otherwise. Hosted engines register the same builtins and aliases,
// but plugins may extend a single document.
func (s *Server) registryFor(r *http.Request) (*dispatch.Manager, bool) {
	id := r.URL.Query().Get("documentID")
	if id == "" {
		return s.baseline.Commands(), true
	}
	eng, ok := s.Engine(id)
	if !ok {
		return nil, false
	}
	return eng.Commands(), true
}

// listCommands handles GET /command
func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registryFor(r)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, reg.Commands())
}

// getCommand handles GET /command/{name}
func (s *Server) getCommand(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.registryFor(r)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	name := chi.URLParam(r, "name")
	for _, info := range reg.Commands() {
		if info.Name == name || info.Name == dispatch.Prefix+name {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeError(w, http.StatusNotFound, ErrCodeNotFound,
		fmt.Sprintf("Command %q not registered", name))
}
