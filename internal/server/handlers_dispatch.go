package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/pkg/types"
)

// DispatchRequest is the request body for dispatching a command.
type DispatchRequest struct {
	// Command is the raw command string, for example "--show:panel".
	Command string `json:"command"`
	// Target overrides the command's target selector.
	Target string `json:"target,omitempty"`
	// Invoker names the element to treat as the initiating element.
	Invoker string `json:"invoker,omitempty"`
}

// dispatchCommand handles POST /document/{documentID}/dispatch
func (s *Server) dispatchCommand(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	eng, ok := s.Engine(documentID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "command is required")
		return
	}

	// Dispatch drops unresolved commands on the floor and reports
	// them on the bus, so the API pre-flights the lookup to answer
	// with a proper status and a recovery hint.
	if _, ok := eng.Commands().Resolve(req.Command); !ok {
		writeErrorWithDetails(w, http.StatusNotFound, ErrCodeUnknownCommand,
			fmt.Sprintf("Unknown command %q", req.Command),
			map[string]any{"recovery": eng.Commands().RecoveryHint(req.Command)})
		return
	}

	var invoker *dom.Element
	if req.Invoker != "" {
		doc := eng.Document()
		if doc == nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "no document loaded")
			return
		}
		invoker = doc.First(req.Invoker)
		if invoker == nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				fmt.Sprintf("no element matches invoker selector %q", req.Invoker))
			return
		}
	}

	res, err := eng.Dispatch(r.Context(), dispatch.Request{
		Raw:            req.Command,
		TargetSelector: req.Target,
		Invoker:        invoker,
		Source:         types.SourceAPI,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeCommandFailed, err.Error())
		return
	}
	// The command resolved, so a nil result means the limiter shed
	// the dispatch.
	if res == nil {
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "dispatch rate limit exceeded")
		return
	}

	writeJSON(w, http.StatusOK, res.Wire())
}

// FireEventRequest is the request body for firing a document event.
type FireEventRequest struct {
	// Type is the event type, for example "click" or "app:ready".
	Type string `json:"type"`
	// Target selects the element the event targets. Defaults to the
	// document body.
	Target string `json:"target,omitempty"`
	// Key carries the key name for keyboard events.
	Key string `json:"key,omitempty"`
	// Detail carries custom event payload fields.
	Detail map[string]any `json:"detail,omitempty"`
}

// FireEventResponse reports the outcome of a fired event.
type FireEventResponse struct {
	// Dispatched is the number of commands the event triggered.
	Dispatched int `json:"dispatched"`
	// DefaultPrevented reports whether a handler suppressed the
	// event's default action.
	DefaultPrevented bool `json:"defaultPrevented"`
}

// fireEvent handles POST /document/{documentID}/event
func (s *Server) fireEvent(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	eng, ok := s.Engine(documentID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	var req FireEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "event type is required")
		return
	}

	doc := eng.Document()
	if doc == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "no document loaded")
		return
	}

	// Targetless events land on the body so window-scoped bindings
	// still see them during the window pass.
	target := doc.Body()
	if req.Target != "" {
		target = doc.First(req.Target)
	}
	if target == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			fmt.Sprintf("no element matches %q", req.Target))
		return
	}

	ev := dom.NewEvent(req.Type, target).WithDetail(req.Detail)
	ev.Key = req.Key

	n, err := eng.FireEvent(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeCommandFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FireEventResponse{
		Dispatched:       n,
		DefaultPrevented: ev.DefaultPrevented(),
	})
}

// ActivateRequest is the request body for activating an element.
type ActivateRequest struct {
	// Selector picks the element whose declared command runs.
	Selector string `json:"selector"`
}

// activateElement handles POST /document/{documentID}/activate
func (s *Server) activateElement(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	eng, ok := s.Engine(documentID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	req.Selector = strings.TrimSpace(req.Selector)
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "selector is required")
		return
	}

	doc := eng.Document()
	if doc == nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "no document loaded")
		return
	}
	if doc.First(req.Selector) == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound,
			fmt.Sprintf("No element matches %q", req.Selector))
		return
	}

	res, err := eng.Activate(r.Context(), req.Selector)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "dispatch rate limit exceeded")
		return
	}

	writeJSON(w, http.StatusOK, res.Wire())
}
