package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Envelope is one wire event from the /event stream.
type Envelope struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"documentID"`
	Properties map[string]any `json:"properties"`
}

// SSEClient provides SSE client utilities for testing
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu         sync.Mutex
	events     []Envelope
	heartbeats int

	eventsCh chan Envelope
	errCh    chan error
	cancel   context.CancelFunc
	body     io.ReadCloser
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
		eventsCh: make(chan Envelope, 100),
		errCh:    make(chan error, 1),
	}
}

// Connect starts the SSE connection
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", contentType)
	}

	c.body = resp.Body

	// Start reading events in background
	go c.readEvents(resp.Body)

	return nil
}

// readEvents reads the stream. Every event carries the envelope JSON
// in its data field; comment lines are heartbeats.
func (c *SSEClient) readEvents(body io.Reader) {
	defer func() {
		close(c.eventsCh)
		close(c.errCh)
	}()

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && err != context.Canceled {
				c.errCh <- err
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, ":") {
			c.mu.Lock()
			c.heartbeats++
			c.mu.Unlock()
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var env Envelope
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue
		}

		c.mu.Lock()
		c.events = append(c.events, env)
		c.mu.Unlock()

		select {
		case c.eventsCh <- env:
		default:
			// Channel full, drop event
		}
	}
}

// WaitFor waits for an envelope of the given type with timeout.
func (c *SSEClient) WaitFor(eventType string, timeout time.Duration) (*Envelope, error) {
	return c.wait(timeout, func(env Envelope) bool {
		return env.Type == eventType
	})
}

// WaitForDocument waits for an envelope of the given type stamped
// with the given document ID.
func (c *SSEClient) WaitForDocument(eventType, documentID string, timeout time.Duration) (*Envelope, error) {
	return c.wait(timeout, func(env Envelope) bool {
		return env.Type == eventType && env.DocumentID == documentID
	})
}

func (c *SSEClient) wait(timeout time.Duration, match func(Envelope) bool) (*Envelope, error) {
	deadline := time.After(timeout)
	for {
		select {
		case env, ok := <-c.eventsCh:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			if match(env) {
				return &env, nil
			}
		case err := <-c.errCh:
			if err != nil {
				return nil, err
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event")
		}
	}
}

// Events returns a copy of every envelope received so far.
func (c *SSEClient) Events() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.events))
	copy(out, c.events)
	return out
}

// HasEventType checks if an envelope type was received
func (c *SSEClient) HasEventType(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range c.events {
		if env.Type == eventType {
			return true
		}
	}
	return false
}

// CountEventType counts envelopes of a specific type
func (c *SSEClient) CountEventType(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, env := range c.events {
		if env.Type == eventType {
			count++
		}
	}
	return count
}

// Heartbeats reports how many heartbeat comments arrived.
func (c *SSEClient) Heartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

// Close closes the SSE connection
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}
