package fetch

import "errors"

// Common errors returned by the client.
var (
	// ErrTransportRequired is returned by New when no transport is configured.
	ErrTransportRequired = errors.New("transport is required")
)

// User-facing messages produced by CheckExists.
const (
	MsgMovedTemporarily = "Loading error: Moved Temporarily.\n\nURL incorrect? Missing or incorrect API key?"
	MsgNotFound         = "Loading error: Resource not found.\n\nURL incorrect?"
	MsgTooManyRedirects = "Loading error: Too many redirects.\n\nURL incorrect?"
)
