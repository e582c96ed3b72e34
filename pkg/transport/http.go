package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/tile-fetch/pkg/redact"
	"github.com/rs/zerolog"
)

// HTTPConfig holds the HTTP transport configuration.
type HTTPConfig struct {
	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// PollInterval bounds how long ProcessEvents waits when no request completes.
	PollInterval time.Duration

	// Client is the underlying HTTP client (default: a plain client).
	// Redirect following is always disabled on a copy of it.
	Client *http.Client
}

// DefaultHTTPConfig returns the default HTTP transport configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		UserAgent:    "tile-fetch/0.1.0",
		PollInterval: 10 * time.Millisecond,
	}
}

// HTTPTransport backs every handle with its own goroutine running a
// net/http request. Completions are signalled to ProcessEvents.
type HTTPTransport struct {
	client *http.Client
	config HTTPConfig
	events chan struct{}
	logger zerolog.Logger
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg HTTPConfig, logger zerolog.Logger) *HTTPTransport {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}

	client := &http.Client{}
	if cfg.Client != nil {
		c := *cfg.Client
		client = &c
	}
	// 301/302 must reach the caller's status mapping.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &HTTPTransport{
		client: client,
		config: cfg,
		events: make(chan struct{}, 1),
		logger: logger,
	}
}

// Issue starts the request in the background and returns its handle.
func (t *HTTPTransport) Issue(ctx context.Context, rawURL string, headOnly bool) Handle {
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}

	reqCtx, cancel := context.WithCancel(ctx)
	h := &httpHandle{
		url:    rawURL,
		method: method,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "invalid").Inc()
		h.finish(0, nil, nil, fmt.Errorf("create request: %w", err))
		t.notify()
		return h
	}
	if t.config.UserAgent != "" {
		req.Header.Set("User-Agent", t.config.UserAgent)
	}

	t.logger.Debug().
		Str("method", method).
		Str("url", redact.SensitiveKey(rawURL)).
		Msg("Issuing request")

	requestsInflight.Inc()
	go t.run(h, req)

	return h
}

// ProcessEvents waits until a request completes or the poll interval elapses.
func (t *HTTPTransport) ProcessEvents() {
	timer := time.NewTimer(t.config.PollInterval)
	defer timer.Stop()

	select {
	case <-t.events:
	case <-timer.C:
	}
}

func (t *HTTPTransport) run(h *httpHandle, req *http.Request) {
	defer t.notify()
	defer requestsInflight.Dec()

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(h.method).Observe(time.Since(start).Seconds())
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(h.method, "network_error").Inc()
		t.logger.Debug().
			Err(err).
			Str("url", redact.SensitiveKey(h.url)).
			Msg("Request failed")
		h.finish(0, nil, nil, err)
		return
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	requestDuration.WithLabelValues(h.method).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(h.method, strconv.Itoa(resp.StatusCode)).Inc()

	var resultErr error
	if resp.StatusCode >= 400 {
		resultErr = &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		errorsTotal.WithLabelValues(string(classify(resp.StatusCode, resultErr))).Inc()
	} else if readErr != nil {
		resultErr = fmt.Errorf("read response body: %w", readErr)
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
	}

	h.finish(resp.StatusCode, resp.Header, body, resultErr)
}

func (t *HTTPTransport) notify() {
	select {
	case t.events <- struct{}{}:
	default:
	}
}

type httpHandle struct {
	url    string
	method string
	cancel context.CancelFunc
	done   chan struct{}

	aborted atomic.Bool

	mu     sync.Mutex
	status int
	header http.Header
	body   []byte
	err    error
}

func (h *httpHandle) finish(status int, header http.Header, body []byte, err error) {
	h.mu.Lock()
	h.status = status
	h.header = header
	h.body = body
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *httpHandle) URL() string {
	return h.url
}

func (h *httpHandle) IsComplete() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *httpHandle) Err() error {
	if !h.IsComplete() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *httpHandle) StatusCode() int {
	if !h.IsComplete() {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *httpHandle) Header(name string) string {
	if !h.IsComplete() {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.header == nil {
		return ""
	}
	return h.header.Get(name)
}

func (h *httpHandle) ReadBody() []byte {
	if !h.IsComplete() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.body
}

func (h *httpHandle) Abort() {
	if h.IsComplete() {
		return
	}
	if h.aborted.CompareAndSwap(false, true) {
		abortsTotal.Inc()
	}
	h.cancel()
}

func (h *httpHandle) Release() {
	h.cancel()
	if !h.IsComplete() {
		return
	}
	h.mu.Lock()
	h.body = nil
	h.header = nil
	h.mu.Unlock()
}
