package cache

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/Sternrassler/tile-fetch/pkg/redact"
	"github.com/Sternrassler/tile-fetch/pkg/transport"
	"github.com/rs/zerolog"
)

// Transport serves GET requests from the cache when possible and stores
// successful responses of the wrapped transport.
type Transport struct {
	inner   transport.Transport
	manager *Manager
	logger  zerolog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport wraps inner with the cache managed by manager.
func NewTransport(inner transport.Transport, manager *Manager, logger zerolog.Logger) *Transport {
	if inner == nil || manager == nil {
		panic("inner transport and cache manager are required")
	}
	return &Transport{
		inner:   inner,
		manager: manager,
		logger:  logger,
	}
}

// Issue implements transport.Transport.
func (t *Transport) Issue(ctx context.Context, rawURL string, headOnly bool) transport.Handle {
	if headOnly {
		return t.inner.Issue(ctx, rawURL, true)
	}

	key, err := KeyFromURL(rawURL)
	if err != nil {
		return t.inner.Issue(ctx, rawURL, false)
	}

	entry, err := t.manager.Get(ctx, key)
	switch {
	case err == nil:
		t.logger.Debug().
			Str("url", redact.SensitiveKey(rawURL)).
			Dur("ttl", entry.TTL()).
			Msg("Serving from cache")
		return &entryHandle{url: rawURL, entry: entry}
	case !errors.Is(err, ErrCacheMiss):
		t.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	return &storingHandle{
		Handle: t.inner.Issue(ctx, rawURL, false),
		ctx:    ctx,
		key:    key,
		owner:  t,
	}
}

// ProcessEvents implements transport.Transport.
func (t *Transport) ProcessEvents() {
	t.inner.ProcessEvents()
}

// storingHandle stores the response body the first time it is read.
type storingHandle struct {
	transport.Handle
	ctx   context.Context
	key   Key
	owner *Transport
	once  sync.Once
}

func (h *storingHandle) ReadBody() []byte {
	body := h.Handle.ReadBody()
	if !Cacheable(h.Handle) {
		return body
	}

	h.once.Do(func() {
		entry, err := EntryFromHandle(h.Handle, body)
		if err != nil {
			h.owner.logger.Warn().Err(err).Msg("Failed to create cache entry")
			return
		}
		if err := h.owner.manager.Set(h.ctx, h.key, entry); err != nil {
			h.owner.logger.Warn().Err(err).Str("key", h.key.String()).Msg("Failed to cache response")
			return
		}
		CacheStores.Inc()
		h.owner.logger.Debug().
			Str("key", h.key.String()).
			Dur("ttl", entry.TTL()).
			Msg("Cached response")
	})

	return body
}

// entryHandle is an already-complete handle backed by a cache entry.
type entryHandle struct {
	url   string
	entry *Entry
}

func (h *entryHandle) URL() string {
	return h.url
}

func (h *entryHandle) IsComplete() bool {
	return true
}

func (h *entryHandle) Err() error {
	return nil
}

func (h *entryHandle) StatusCode() int {
	if h.entry.StatusCode == 0 {
		return http.StatusOK
	}
	return h.entry.StatusCode
}

func (h *entryHandle) Header(name string) string {
	if h.entry.Headers == nil {
		return ""
	}
	return h.entry.Headers.Get(name)
}

func (h *entryHandle) ReadBody() []byte {
	return h.entry.Data
}

func (h *entryHandle) Abort() {}

func (h *entryHandle) Release() {}
