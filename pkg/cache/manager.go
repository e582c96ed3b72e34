package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// ManagerConfig bounds what the manager keeps in Redis.
type ManagerConfig struct {
	// MaxTTL caps the lifetime taken from a tile's Expires header.
	// Zero disables the cap.
	MaxTTL time.Duration

	// MaxEntryBytes is the largest payload stored. Zero means unlimited.
	MaxEntryBytes int
}

// DefaultManagerConfig returns limits suited to vector and raster tiles.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxTTL:        24 * time.Hour,
		MaxEntryBytes: 4 << 20,
	}
}

// Manager stores tile responses in Redis under Key.String().
type Manager struct {
	redis  *redis.Client
	config ManagerConfig
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, cfg ManagerConfig) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		config: cfg,
	}
}

// Get returns the entry for key, or ErrCacheMiss when there is none or it
// has expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry := new(Entry)
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry has second granularity; the entry's own clock wins.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry, nil
}

// Set stores entry until its expiry, capped at MaxTTL. Expired entries and
// payloads over MaxEntryBytes are skipped without error.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	if m.config.MaxEntryBytes > 0 && len(entry.Data) > m.config.MaxEntryBytes {
		CacheSkipped.WithLabelValues("too_large").Inc()
		return nil
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		CacheSkipped.WithLabelValues("expired").Inc()
		return nil
	}

	stored := *entry
	if m.config.MaxTTL > 0 && ttl > m.config.MaxTTL {
		ttl = m.config.MaxTTL
		stored.Expires = time.Now().Add(ttl)
	}

	raw, err := json.Marshal(&stored)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(raw)))
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// PurgeHost removes every cached tile of host, e.g. after a tileset was
// republished. It returns the number of entries removed.
func (m *Manager) PurgeHost(ctx context.Context, host string) (int, error) {
	prefix := "tilefetch:" + globEscape(strings.ToLower(host))

	removed := 0
	for _, pattern := range []string{prefix, prefix + "/*", prefix + ":*"} {
		iter := m.redis.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		n, err := m.redis.Del(ctx, keys...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
	}

	return removed, nil
}

// globEscape quotes the Redis glob metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
