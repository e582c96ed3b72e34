package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/Sternrassler/tile-fetch/pkg/transport"
)

// ErrConnectionRefused is reported for URLs without a scripted response.
var ErrConnectionRefused = errors.New("connection refused")

// FakeResponse scripts the outcome of requests for one URL.
type FakeResponse struct {
	StatusCode int
	Body       []byte
	Err        error
	Headers    map[string]string

	// CompleteAfter is the number of ProcessEvents calls after Issue before
	// the handle reports complete. Negative values never complete.
	CompleteAfter int
}

// FakeTransport completes handles on a schedule driven by ProcessEvents
// calls, so tests control exactly when each request finishes.
type FakeTransport struct {
	mu        sync.Mutex
	responses map[string]FakeResponse
	handles   []*FakeHandle
	ticks     int

	// OnProcessEvents, if set, runs after each tick with the new tick count.
	OnProcessEvents func(tick int)
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates an empty fake transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		responses: make(map[string]FakeResponse),
	}
}

// Respond scripts the response for url.
func (f *FakeTransport) Respond(url string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = resp
}

// Issue implements transport.Transport.
func (f *FakeTransport) Issue(_ context.Context, url string, headOnly bool) transport.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp, ok := f.responses[url]
	if !ok {
		resp = FakeResponse{Err: ErrConnectionRefused}
	}

	h := &FakeHandle{
		owner:    f,
		url:      url,
		HeadOnly: headOnly,
		resp:     resp,
		never:    resp.CompleteAfter < 0,
		doneAt:   f.ticks + resp.CompleteAfter,
	}
	f.handles = append(f.handles, h)
	return h
}

// ProcessEvents advances the fake clock by one tick.
func (f *FakeTransport) ProcessEvents() {
	f.mu.Lock()
	f.ticks++
	tick := f.ticks
	hook := f.OnProcessEvents
	f.mu.Unlock()

	if hook != nil {
		hook(tick)
	}
}

// Ticks returns the number of ProcessEvents calls so far.
func (f *FakeTransport) Ticks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

// Handles returns every handle issued so far, in issue order.
func (f *FakeTransport) Handles() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.handles...)
}

// HandleFor returns the first handle issued for url, or nil.
func (f *FakeTransport) HandleFor(url string) *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.handles {
		if h.url == url {
			return h
		}
	}
	return nil
}

// FakeHandle is a handle issued by FakeTransport. It records how the
// coordinator used it.
type FakeHandle struct {
	owner    *FakeTransport
	url      string
	resp     FakeResponse
	never    bool
	doneAt   int
	aborted  bool
	HeadOnly bool

	reads    int
	aborts   int
	releases int
}

var _ transport.Handle = (*FakeHandle)(nil)

func (h *FakeHandle) URL() string {
	return h.url
}

func (h *FakeHandle) IsComplete() bool {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	return h.completeLocked()
}

func (h *FakeHandle) completeLocked() bool {
	if h.aborted {
		return true
	}
	return !h.never && h.owner.ticks >= h.doneAt
}

func (h *FakeHandle) Err() error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	if !h.completeLocked() {
		return nil
	}
	if h.aborted {
		return context.Canceled
	}
	if h.resp.Err != nil {
		return h.resp.Err
	}
	if h.resp.StatusCode >= 400 {
		return &transport.HTTPError{
			StatusCode: h.resp.StatusCode,
			Status:     http.StatusText(h.resp.StatusCode),
		}
	}
	return nil
}

func (h *FakeHandle) StatusCode() int {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	if !h.completeLocked() || h.aborted {
		return 0
	}
	return h.resp.StatusCode
}

func (h *FakeHandle) Header(name string) string {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	if !h.completeLocked() || h.aborted {
		return ""
	}
	return http.Header(canonical(h.resp.Headers)).Get(name)
}

func (h *FakeHandle) ReadBody() []byte {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.reads++
	if !h.completeLocked() || h.aborted {
		return nil
	}
	return h.resp.Body
}

func (h *FakeHandle) Abort() {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.aborts++
	h.aborted = true
}

func (h *FakeHandle) Release() {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.releases++
}

// Reads returns how many times ReadBody was called.
func (h *FakeHandle) Reads() int {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	return h.reads
}

// Aborts returns how many times Abort was called.
func (h *FakeHandle) Aborts() int {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	return h.aborts
}

// Releases returns how many times Release was called.
func (h *FakeHandle) Releases() int {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	return h.releases
}

func canonical(headers map[string]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		out[http.CanonicalHeaderKey(k)] = []string{v}
	}
	return out
}
