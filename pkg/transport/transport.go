// Package transport defines the request/handle abstraction the fetch
// coordinator polls, and a net/http backed implementation of it.
//
// A Handle moves from in-flight to complete exactly once. Result accessors
// (Err, StatusCode, Header, ReadBody) are only meaningful after IsComplete
// has returned true; before that they return zero values.
package transport

import "context"

// Transport issues requests and drives their progress.
type Transport interface {
	// Issue starts a request for rawURL and returns immediately.
	// headOnly selects a HEAD request instead of GET.
	Issue(ctx context.Context, rawURL string, headOnly bool) Handle

	// ProcessEvents yields to the I/O substrate so in-flight handles can
	// progress. It returns after some progress was made or after a short
	// bounded wait, whichever comes first.
	ProcessEvents()
}

// Handle is one in-flight request.
type Handle interface {
	// URL returns the requested URL.
	URL() string

	// IsComplete reports whether the request has finished, successfully or not.
	IsComplete() bool

	// Err returns the transport failure, or an *HTTPError when the server
	// answered with a status >= 400. Nil on success.
	Err() error

	// StatusCode returns the HTTP status, or 0 when none was obtained.
	StatusCode() int

	// Header returns a response header value, or "" if absent.
	Header(name string) string

	// ReadBody returns the response payload.
	ReadBody() []byte

	// Abort cancels an in-flight request. No-op once complete.
	Abort()

	// Release frees resources held by the handle.
	Release()
}

// Await polls h until it completes, yielding to t between polls.
func Await(t Transport, h Handle) {
	for !h.IsComplete() {
		t.ProcessEvents()
	}
}
