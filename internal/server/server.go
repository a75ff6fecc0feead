package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"

	"github.com/conductor-html/conductor/internal/engine"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8080,
		CORSOrigins:  []string{"*"},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// hostedDocument is one document loaded on the server, with its own
// engine and bus.
type hostedDocument struct {
	id      string
	engine  *engine.Engine
	unsub   func()
	created time.Time
}

// Server is the HTTP server.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	appConfig *types.Config

	// baseline answers registry queries that name no document. Every
	// hosted engine shares its builtin and alias set.
	baseline *engine.Engine

	mu   sync.RWMutex
	docs map[string]*hostedDocument

	streams *streamRegistry
}

// New creates a new Server instance. appConfig feeds every hosted
// document's engine; invalid alias declarations surface here rather
// than on the first document load.
func New(cfg *Config, appConfig *types.Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	baseline, err := engine.New(appConfig)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		appConfig: appConfig,
		baseline:  baseline,
		docs:      make(map[string]*hostedDocument),
		streams:   newStreamRegistry(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// Host loads markup as a new hosted document and returns its ID.
// An empty path marks the document as inline.
func (s *Server) Host(markup, path string) (string, error) {
	eng, err := engine.New(s.appConfig)
	if err != nil {
		return "", err
	}
	if err := eng.LoadDocument(markup, path); err != nil {
		eng.Close()
		return "", err
	}
	return s.adopt(eng), nil
}

// HostFile loads a document file from disk and returns its ID and
// engine. The engine is exposed so callers can wire file watchers.
func (s *Server) HostFile(path string) (string, *engine.Engine, error) {
	eng, err := engine.New(s.appConfig)
	if err != nil {
		return "", nil, err
	}
	if err := eng.LoadFile(path); err != nil {
		eng.Close()
		return "", nil, err
	}
	return s.adopt(eng), eng, nil
}

// adopt registers an engine as a hosted document and bridges its bus
// into the server's event streams.
func (s *Server) adopt(eng *engine.Engine) string {
	id := ulid.Make().String()
	doc := &hostedDocument{
		id:      id,
		engine:  eng,
		created: time.Now(),
	}
	doc.unsub = eng.Bus().SubscribeAll(func(e event.Event) {
		s.streams.broadcast(envelope{
			Type:       string(e.Type),
			DocumentID: id,
			Properties: e.Data,
		})
	})

	s.mu.Lock()
	s.docs[id] = doc
	s.mu.Unlock()
	return id
}

// Engine returns the engine hosting the given document.
func (s *Server) Engine(id string) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return doc.engine, true
}

// document looks up a hosted document by ID.
func (s *Server) document(id string) (*hostedDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// closeDocument removes a hosted document and tears down its engine.
func (s *Server) closeDocument(id string) bool {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if ok {
		delete(s.docs, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	doc.unsub()
	doc.engine.Close()
	s.streams.broadcast(envelope{
		Type:       "document.closed",
		DocumentID: id,
		Properties: map[string]any{},
	})
	return true
}

// Addr returns the address the server binds to.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes every hosted
// document.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	docs := make([]*hostedDocument, 0, len(s.docs))
	for id, doc := range s.docs {
		docs = append(docs, doc)
		delete(s.docs, id)
	}
	s.mu.Unlock()

	for _, doc := range docs {
		doc.unsub()
		doc.engine.Close()
	}
	s.baseline.Close()

	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
