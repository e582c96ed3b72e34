package cache

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/tile-fetch/pkg/transport"
)

const (
	// DefaultTTL is the fallback TTL when no expires header is present
	DefaultTTL = 5 * time.Minute
)

// keptHeaders are the response headers stored with an entry.
var keptHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"ETag",
	"Expires",
	"Last-Modified",
}

// Cacheable reports whether a completed handle may be stored.
func Cacheable(h transport.Handle) bool {
	if h == nil || !h.IsComplete() {
		return false
	}
	if h.Err() != nil || h.StatusCode() != http.StatusOK {
		return false
	}
	return !strings.Contains(strings.ToLower(h.Header("Cache-Control")), "no-store")
}

// EntryFromHandle converts a completed handle and its body to an Entry.
func EntryFromHandle(h transport.Handle, body []byte) (*Entry, error) {
	if h == nil {
		return nil, fmt.Errorf("handle cannot be nil")
	}
	if !h.IsComplete() {
		return nil, fmt.Errorf("handle is not complete")
	}

	headers := make(http.Header)
	for _, name := range keptHeaders {
		if v := h.Header(name); v != "" {
			headers.Set(name, v)
		}
	}

	entry := &Entry{
		Data:       body,
		ETag:       headers.Get("ETag"),
		StatusCode: h.StatusCode(),
		Headers:    headers,
		CachedAt:   time.Now(),
		Expires:    parseExpires(headers),
	}

	if lastModStr := headers.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// parseExpires parses the Expires header from HTTP headers.
// Returns the parsed expiration time, or current time + DefaultTTL if parsing fails.
func parseExpires(headers http.Header) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(DefaultTTL)
	}

	// Already expired: entry gets a zero TTL and is not stored
	if expires.Before(time.Now()) {
		return time.Now()
	}

	return expires
}
