package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/conductor-html/conductor/pkg/types"
)

// CreateDocumentRequest is the request body for loading a document.
// Inline markup wins over a server-side path when both are set.
type CreateDocumentRequest struct {
	HTML string `json:"html,omitempty"`
	Path string `json:"path,omitempty"`
}

// DocumentSummary describes one hosted document.
type DocumentSummary struct {
	ID   string              `json:"id"`
	Info *types.DocumentInfo `json:"info"`
}

// listDocuments handles GET /document
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	docs := make([]*hostedDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.RUnlock()

	out := make([]DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DocumentSummary{ID: doc.id, Info: doc.engine.Info()})
	}
	// ULIDs sort lexically by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, http.StatusOK, out)
}

// createDocument handles POST /document
func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	var (
		id  string
		err error
	)
	switch {
	case req.HTML != "":
		id, err = s.Host(req.HTML, req.Path)
	case req.Path != "":
		id, _, err = s.HostFile(req.Path)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "html or path is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	doc, _ := s.document(id)
	writeJSON(w, http.StatusOK, DocumentSummary{ID: id, Info: doc.engine.Info()})
}

// getDocument handles GET /document/{documentID}
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(chi.URLParam(r, "documentID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	writeJSON(w, http.StatusOK, DocumentSummary{ID: doc.id, Info: doc.engine.Info()})
}

// replaceDocument handles PUT /document/{documentID}
func (s *Server) replaceDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(chi.URLParam(r, "documentID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.HTML == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "html is required")
		return
	}

	path := req.Path
	if path == "" {
		path = doc.engine.Path()
	}
	if err := doc.engine.LoadDocument(req.HTML, path); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DocumentSummary{ID: doc.id, Info: doc.engine.Info()})
}

// deleteDocument handles DELETE /document/{documentID}
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if !s.closeDocument(chi.URLParam(r, "documentID")) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	writeSuccess(w)
}

// getDocumentHTML handles GET /document/{documentID}/html
func (s *Server) getDocumentHTML(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(chi.URLParam(r, "documentID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	html, err := doc.engine.HTML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

// listTriggers handles GET /document/{documentID}/triggers
func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(chi.URLParam(r, "documentID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	writeJSON(w, http.StatusOK, doc.engine.Triggers().Infos())
}

// ElementInfo is the wire form of one matched element.
type ElementInfo struct {
	Tag  string `json:"tag"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// selectElements handles GET /document/{documentID}/select?selector=
func (s *Server) selectElements(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(chi.URLParam(r, "documentID"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	selector := r.URL.Query().Get("selector")
	if selector == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "selector is required")
		return
	}

	d := doc.engine.Document()
	if d == nil {
		writeJSON(w, http.StatusOK, []ElementInfo{})
		return
	}

	matches := d.Find(selector)
	out := make([]ElementInfo, 0, len(matches))
	for _, el := range matches {
		out = append(out, ElementInfo{Tag: el.Tag(), ID: el.ID(), Text: el.Text()})
	}

	writeJSON(w, http.StatusOK, out)
}
