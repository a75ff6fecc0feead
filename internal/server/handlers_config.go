package server

import (
	"net/http"

	"github.com/conductor-html/conductor/pkg/types"
)

// getConfig handles GET /config. Hosted documents are seeded from this
// configuration at load time, so runtime edits would not reach them;
// the endpoint is read-only.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.appConfig
	if cfg == nil {
		cfg = &types.Config{}
	}
	writeJSON(w, http.StatusOK, cfg)
}
