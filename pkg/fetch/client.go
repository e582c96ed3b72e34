// Package fetch exposes the public operations of tile-fetch: batch fetching,
// URL existence checks and single-resource loads.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/tile-fetch/pkg/batch"
	"github.com/Sternrassler/tile-fetch/pkg/logging"
	"github.com/Sternrassler/tile-fetch/pkg/redact"
	"github.com/Sternrassler/tile-fetch/pkg/transport"
	"github.com/rs/zerolog"
)

// Client runs fetch operations over a Transport.
type Client struct {
	transport   transport.Transport
	config      Config
	logger      zerolog.Logger
	batchLogger zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Transport issues the requests (REQUIRED)
	Transport transport.Transport

	// MaxRedirects bounds the permanent redirects CheckExists follows.
	MaxRedirects int
}

// DefaultConfig returns a default configuration for the given transport.
func DefaultConfig(t transport.Transport) Config {
	return Config{
		Transport:    t,
		MaxRedirects: 10,
	}
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, ErrTransportRequired
	}

	if cfg.MaxRedirects < 0 {
		return nil, fmt.Errorf("max_redirects must be >= 0 (got %d)", cfg.MaxRedirects)
	}

	return &Client{
		transport:   cfg.Transport,
		config:      cfg,
		logger:      logging.NewLogger(logging.ComponentFetchClient),
		batchLogger: logging.NewLogger(logging.ComponentBatchFetcher),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetBatchLogger replaces the logger handed to batch fetchers.
func (c *Client) SetBatchLogger(logger zerolog.Logger) {
	c.batchLogger = logger
}

// ExistsResult is the outcome of CheckExists.
type ExistsResult struct {
	Success  bool
	Error    string
	FinalURL string
}

// LoadResult is the outcome of Load. StatusCode is 0 when no HTTP status
// was obtained.
type LoadResult struct {
	StatusCode int
	Content    string
}

// CheckExists checks rawURL with a HEAD request. Permanent redirects to a
// different location are followed, up to Config.MaxRedirects hops.
func (c *Client) CheckExists(ctx context.Context, rawURL string) ExistsResult {
	current := rawURL

	for hops := 0; ; hops++ {
		h := c.transport.Issue(ctx, current, true)
		transport.Await(c.transport, h)
		status := h.StatusCode()
		location := h.Header("Location")
		err := h.Err()
		h.Release()

		if status == http.StatusMovedPermanently && location != "" {
			next := resolveLocation(current, location)
			if next != current {
				if hops >= c.config.MaxRedirects {
					c.logger.Info().
						Str("url", redact.SensitiveKey(current)).
						Int("status", status).
						Msg("URL check")
					c.logger.Warn().
						Str("url", redact.SensitiveKey(current)).
						Int("max_redirects", c.config.MaxRedirects).
						Msg("Too many redirects")
					urlChecksTotal.WithLabelValues("failed").Inc()
					return ExistsResult{Error: MsgTooManyRedirects, FinalURL: current}
				}
				c.logger.Info().
					Str("location", redact.SensitiveKey(next)).
					Msg("Moved permanently, new location")
				redirectsFollowedTotal.Inc()
				current = next
				continue
			}
		}

		c.logger.Info().
			Str("url", redact.SensitiveKey(current)).
			Int("status", status).
			Msg("URL check")

		result := ExistsResult{
			Success:  status == http.StatusOK,
			FinalURL: current,
		}
		if !result.Success {
			result.Error = existsError(current, status, err)
			urlChecksTotal.WithLabelValues("failed").Inc()
		} else {
			urlChecksTotal.WithLabelValues("ok").Inc()
		}
		return result
	}
}

// existsError maps a failed check to its user-facing message.
func existsError(rawURL string, status int, err error) string {
	switch {
	case status == 0:
		if err == nil {
			return ""
		}
		return err.Error()
	case status == http.StatusFound:
		return MsgMovedTemporarily
	case status == http.StatusNotFound:
		return MsgNotFound
	case err != nil:
		return fmt.Sprintf("Loading error: %s\n\nURL incorrect? (HTTP Status %d)", err.Error(), status)
	default:
		return fmt.Sprintf("Something went wrong with '%s'. HTTP Status is %d", redact.SensitiveKey(rawURL), status)
	}
}

// resolveLocation resolves a Location header against the URL it came from.
func resolveLocation(base, location string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return location
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return location
	}
	return baseURL.ResolveReference(locURL).String()
}

// Load fetches rawURL and waits for it. On success Content holds the body;
// otherwise it holds a failure description, which is also logged.
func (c *Client) Load(ctx context.Context, rawURL string) LoadResult {
	h := c.transport.Issue(ctx, rawURL, false)
	transport.Await(c.transport, h)
	defer h.Release()

	status := h.StatusCode()
	if status == http.StatusOK {
		loadsTotal.WithLabelValues("ok").Inc()
		return LoadResult{StatusCode: status, Content: string(h.ReadBody())}
	}

	var content string
	if status == 0 {
		content = fmt.Sprintf("Request failed: %v", h.Err())
	} else {
		content = fmt.Sprintf("Request failed: HTTP status %d", status)
	}
	c.logger.Warn().
		Str("url", redact.SensitiveKey(rawURL)).
		Str("error_class", string(transport.Classify(h))).
		Msg(content)
	loadsTotal.WithLabelValues("failed").Inc()

	return LoadResult{StatusCode: status, Content: content}
}

// FetchAll runs a batch over the client's transport. See batch.BatchFetcher.FetchAll.
func FetchAll[L comparable](ctx context.Context, c *Client, requests []batch.Request[L], onProgress batch.ProgressFunc, isCancelled batch.CancelledFunc) (map[L][]byte, error) {
	return batch.NewBatchFetcher[L](c.transport, c.batchLogger).FetchAll(ctx, requests, onProgress, isCancelled)
}

// Fetch is FetchAll but also reports whether the batch was cancelled.
func Fetch[L comparable](ctx context.Context, c *Client, requests []batch.Request[L], onProgress batch.ProgressFunc, isCancelled batch.CancelledFunc) (batch.Outcome[L], error) {
	return batch.NewBatchFetcher[L](c.transport, c.batchLogger).Fetch(ctx, requests, onProgress, isCancelled)
}
