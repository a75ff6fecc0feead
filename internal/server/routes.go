package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Document routes
	r.Route("/document", func(r chi.Router) {
		r.Get("/", s.listDocuments)
		r.Post("/", s.createDocument)

		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", s.getDocument)
			r.Put("/", s.replaceDocument)
			r.Delete("/", s.deleteDocument)

			r.Get("/html", s.getDocumentHTML)
			r.Get("/triggers", s.listTriggers)
			r.Get("/select", s.selectElements)

			// Operations
			r.Post("/dispatch", s.dispatchCommand)
			r.Post("/event", s.fireEvent)
			r.Post("/activate", s.activateElement)
		})
	})

	// Command registry
	r.Route("/command", func(r chi.Router) {
		r.Get("/", s.listCommands)
		r.Get("/{name}", s.getCommand)
	})

	// Effective application configuration
	r.Get("/config", s.getConfig)

	// Event streaming (SSE); optional ?documentID= filter
	r.Get("/event", s.events)

	// Live document feed (websocket)
	r.Get("/ws/{documentID}", s.documentSocket)
}
