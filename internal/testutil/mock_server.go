// Package testutil provides testing utilities for tile-fetch.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTileServer is a configurable mock tile server for testing.
type MockTileServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	HeadCount    int
	LastRequest  *http.Request
}

// NewMockTileServer creates a new mock tile server.
func NewMockTileServer() *MockTileServer {
	mock := &MockTileServer{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if r.Method == http.MethodHead {
			mock.HeadCount++
		}
		mock.LastRequest = r.Clone(r.Context())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTileServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTileServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTileServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.HeadCount = 0
	m.LastRequest = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTileServer) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockTileServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" && r.Method != http.MethodHead {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetRedirect answers path with the given status and Location header.
func (m *MockTileServer) SetRedirect(path string, status int, location string) {
	m.SetResponse(path, MockResponse{
		StatusCode: status,
		Headers:    map[string]string{"Location": location},
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTileServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequest returns a copy of the most recent request.
func (m *MockTileServer) GetLastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequest
}

// GetHeadCount returns the number of HEAD requests made to the server.
func (m *MockTileServer) GetHeadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HeadCount
}

// NewTileResponse creates a standard 200 OK tile response.
func NewTileResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/x-protobuf",
			"ETag":         `"tile-etag-123"`,
			"Expires":      time.Now().Add(5 * time.Minute).UTC().Format(http.TimeFormat),
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       "not found",
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
