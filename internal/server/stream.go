package server

import (
	"sync"

	"github.com/conductor-html/conductor/internal/logging"
)

// envelope wraps a bus event with the document that produced it.
// Wire shape: {"type": "...", "documentID": "...", "properties": {...}}
type envelope struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentID,omitempty"`
	Properties any    `json:"properties"`
}

// streamClient is one connected SSE or websocket consumer.
type streamClient struct {
	docID string // "" receives every document's events
	ch    chan envelope
}

// streamRegistry fans hosted-document events out to connected
// clients. Slow consumers drop events rather than block the bus.
type streamRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]*streamClient
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{clients: make(map[uint64]*streamClient)}
}

// subscribe registers a client. A non-empty docID narrows the feed to
// one document. The returned func unsubscribes and closes the channel;
// broadcast only sends under the registry lock, so the close cannot
// race a delivery.
func (r *streamRegistry) subscribe(docID string) (<-chan envelope, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	c := &streamClient{docID: docID, ch: make(chan envelope, 10)}
	r.clients[id] = c

	return c.ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.clients[id]; ok {
			delete(r.clients, id)
			close(c.ch)
		}
	}
}

// broadcast delivers an envelope to every matching client.
func (r *streamRegistry) broadcast(e envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		if c.docID != "" && c.docID != e.DocumentID {
			continue
		}
		select {
		case c.ch <- e:
		default:
			logging.Warn().
				Str("eventType", e.Type).
				Str("documentID", e.DocumentID).
				Msg("stream event dropped: channel full")
		}
	}
}
