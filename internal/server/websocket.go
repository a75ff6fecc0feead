package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/dom"
	"github.com/conductor-html/conductor/internal/engine"
	"github.com/conductor-html/conductor/internal/event"
	"github.com/conductor-html/conductor/internal/logging"
	"github.com/conductor-html/conductor/pkg/types"
)

const (
	socketPingInterval = 30 * time.Second
	socketReadTimeout  = 120 * time.Second
	socketWriteWait    = 10 * time.Second
)

// WebSocket upgrader with permissive settings for local development
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsRequest is an inbound socket frame. Action selects the operation;
// the remaining fields mirror the HTTP request bodies.
type wsRequest struct {
	Action   string         `json:"action"` // "dispatch", "event", "activate", "ping"
	Command  string         `json:"command,omitempty"`
	Target   string         `json:"target,omitempty"`
	Invoker  string         `json:"invoker,omitempty"`
	Selector string         `json:"selector,omitempty"`
	Type     string         `json:"type,omitempty"`
	Key      string         `json:"key,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

func htmlFrame(documentID, html string) envelope {
	return envelope{
		Type:       "document.html",
		DocumentID: documentID,
		Properties: map[string]any{"html": html},
	}
}

func errorFrame(documentID, code, message string) envelope {
	return envelope{
		Type:       "error",
		DocumentID: documentID,
		Properties: map[string]any{"code": code, "message": message},
	}
}

// documentSocket handles GET /ws/{documentID}. The socket carries the
// document's bus events outward and accepts dispatch, event, and
// activate frames inward, so a client can drive a document over one
// connection.
func (s *Server) documentSocket(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	eng, ok := s.Engine(documentID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Document not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Str("documentID", documentID).Msg("websocket upgrade failed")
		return
	}

	s.serveSocket(r.Context(), eng, documentID, conn)
}

func (s *Server) serveSocket(ctx context.Context, eng *engine.Engine, documentID string, conn *websocket.Conn) {
	defer conn.Close()

	logging.Info().
		Str("documentID", documentID).
		Str("remote", conn.RemoteAddr().String()).
		Msg("websocket connected")

	// The first frame carries the rendered document so clients can
	// paint before any event arrives. No other writer exists yet.
	if html, err := eng.HTML(); err == nil {
		if err := conn.WriteJSON(htmlFrame(documentID, html)); err != nil {
			return
		}
	}

	events, unsub := s.streams.subscribe(documentID)
	defer unsub()

	outbound := make(chan envelope, 16)
	writerDone := make(chan struct{})

	// gorilla permits one concurrent writer, so every frame funnels
	// through this goroutine. It owns pings too.
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(socketPingInterval)
		defer ticker.Stop()
		for {
			select {
			case env := <-outbound:
				if conn.WriteJSON(env) != nil {
					return
				}
			case env, ok := <-events:
				if !ok {
					return
				}
				if conn.WriteJSON(env) != nil {
					return
				}
				// Loads and mutations refresh the rendered document
				// so clients re-paint without a follow-up request.
				if env.Type == string(event.DocumentLoaded) || env.Type == string(event.DocumentMutated) {
					html, err := eng.HTML()
					if err != nil {
						continue
					}
					if conn.WriteJSON(htmlFrame(documentID, html)) != nil {
						return
					}
				}
			case <-ticker.C:
				deadline := time.Now().Add(socketWriteWait)
				if conn.WriteControl(websocket.PingMessage, nil, deadline) != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	})

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("documentID", documentID).Msg("websocket read error")
			} else {
				logging.Info().Str("documentID", documentID).Msg("websocket closed")
			}
			return
		}

		env := s.socketAction(ctx, eng, documentID, req)
		select {
		case outbound <- env:
		case <-writerDone:
			return
		}
	}
}

// socketAction executes one inbound frame and builds the reply.
// Document mutations reach the client separately through the bus
// bridge; the reply only carries the operation's own outcome.
func (s *Server) socketAction(ctx context.Context, eng *engine.Engine, documentID string, req wsRequest) envelope {
	switch req.Action {
	case "ping":
		return envelope{Type: "pong", DocumentID: documentID, Properties: map[string]any{}}

	case "dispatch":
		raw := strings.TrimSpace(req.Command)
		if raw == "" {
			return errorFrame(documentID, ErrCodeInvalidRequest, "command is required")
		}
		if _, ok := eng.Commands().Resolve(raw); !ok {
			return errorFrame(documentID, ErrCodeUnknownCommand, eng.Commands().RecoveryHint(raw))
		}
		var invoker *dom.Element
		if req.Invoker != "" {
			doc := eng.Document()
			if doc == nil {
				return errorFrame(documentID, ErrCodeInvalidRequest, "no document loaded")
			}
			invoker = doc.First(req.Invoker)
			if invoker == nil {
				return errorFrame(documentID, ErrCodeInvalidRequest, "no element matches invoker selector "+req.Invoker)
			}
		}
		res, err := eng.Dispatch(ctx, dispatch.Request{
			Raw:            raw,
			TargetSelector: req.Target,
			Invoker:        invoker,
			Source:         types.SourceAPI,
		})
		if err != nil {
			return errorFrame(documentID, ErrCodeCommandFailed, err.Error())
		}
		if res == nil {
			return errorFrame(documentID, ErrCodeRateLimited, "dispatch rate limit exceeded")
		}
		return envelope{Type: "dispatch.result", DocumentID: documentID, Properties: res.Wire()}

	case "event":
		typ := strings.TrimSpace(req.Type)
		if typ == "" {
			return errorFrame(documentID, ErrCodeInvalidRequest, "event type is required")
		}
		doc := eng.Document()
		if doc == nil {
			return errorFrame(documentID, ErrCodeInvalidRequest, "no document loaded")
		}
		target := doc.Body()
		if req.Target != "" {
			target = doc.First(req.Target)
		}
		if target == nil {
			return errorFrame(documentID, ErrCodeInvalidRequest, "no element matches "+req.Target)
		}
		ev := dom.NewEvent(typ, target).WithDetail(req.Detail)
		ev.Key = req.Key
		n, err := eng.FireEvent(ctx, ev)
		if err != nil {
			return errorFrame(documentID, ErrCodeCommandFailed, err.Error())
		}
		return envelope{
			Type:       "event.result",
			DocumentID: documentID,
			Properties: FireEventResponse{Dispatched: n, DefaultPrevented: ev.DefaultPrevented()},
		}

	case "activate":
		sel := strings.TrimSpace(req.Selector)
		if sel == "" {
			return errorFrame(documentID, ErrCodeInvalidRequest, "selector is required")
		}
		res, err := eng.Activate(ctx, sel)
		if err != nil {
			return errorFrame(documentID, ErrCodeInvalidRequest, err.Error())
		}
		if res == nil {
			return errorFrame(documentID, ErrCodeRateLimited, "dispatch rate limit exceeded")
		}
		return envelope{Type: "activate.result", DocumentID: documentID, Properties: res.Wire()}

	default:
		return errorFrame(documentID, ErrCodeInvalidRequest, "unknown action "+req.Action)
	}
}
