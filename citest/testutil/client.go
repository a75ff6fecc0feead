package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/conductor-html/conductor/internal/server"
	"github.com/conductor-html/conductor/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Put performs HTTP PUT request with JSON body
func (c *TestClient) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts...)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Document API helpers ----

// CreateDocument hosts inline markup and returns its summary.
func (c *TestClient) CreateDocument(ctx context.Context, html string) (*server.DocumentSummary, error) {
	resp, err := c.Post(ctx, "/document", map[string]string{"html": html})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("create document: status %d: %s", resp.StatusCode, resp.String())
	}
	var doc server.DocumentSummary
	if err := resp.JSON(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument fetches a hosted document's summary.
func (c *TestClient) GetDocument(ctx context.Context, id string) (*server.DocumentSummary, error) {
	resp, err := c.Get(ctx, "/document/"+id)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("get document: status %d", resp.StatusCode)
	}
	var doc server.DocumentSummary
	if err := resp.JSON(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument closes a hosted document.
func (c *TestClient) DeleteDocument(ctx context.Context, id string) error {
	resp, err := c.Delete(ctx, "/document/"+id)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("delete document: status %d", resp.StatusCode)
	}
	return nil
}

// DocumentHTML fetches the rendered markup of a hosted document.
func (c *TestClient) DocumentHTML(ctx context.Context, id string) (string, error) {
	resp, err := c.Get(ctx, "/document/"+id+"/html")
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("document html: status %d", resp.StatusCode)
	}
	return resp.String(), nil
}

// Dispatch runs a command against a hosted document.
func (c *TestClient) Dispatch(ctx context.Context, id, command, target string) (*types.InvocationResult, error) {
	resp, err := c.Post(ctx, "/document/"+id+"/dispatch", map[string]string{
		"command": command,
		"target":  target,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("dispatch: status %d: %s", resp.StatusCode, resp.String())
	}
	var result types.InvocationResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FireEvent fires a document event and reports the dispatch count.
func (c *TestClient) FireEvent(ctx context.Context, id string, body map[string]any) (*server.FireEventResponse, error) {
	resp, err := c.Post(ctx, "/document/"+id+"/event", body)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("event: status %d: %s", resp.StatusCode, resp.String())
	}
	var result server.FireEventResponse
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Activate invokes the declared command of the element matching
// selector.
func (c *TestClient) Activate(ctx context.Context, id, selector string) (*types.InvocationResult, error) {
	resp, err := c.Post(ctx, "/document/"+id+"/activate", map[string]string{
		"selector": selector,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("activate: status %d: %s", resp.StatusCode, resp.String())
	}
	var result types.InvocationResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
