package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Sternrassler/tile-fetch/pkg/redact"
)

// Key identifies a cached response.
type Key struct {
	// Host is the server host, lower-cased
	Host string

	// Path is the request path
	Path string

	// Query holds the query parameters, sensitive ones excluded
	Query url.Values

	// Credential is a digest of the sensitive parameters, empty when the
	// URL carries none. Responses fetched with different credentials
	// never share an entry.
	Credential string
}

// KeyFromURL builds a cache key for rawURL. Query parameters carrying
// secrets (API keys, tokens) only enter the key as a SHA-256 digest.
func KeyFromURL(rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return Key{}, fmt.Errorf("url has no host: %s", redact.SensitiveKey(rawURL))
	}

	query := url.Values{}
	secrets := url.Values{}
	for name, values := range u.Query() {
		if redact.IsSensitiveParam(name) {
			secrets[strings.ToLower(name)] = append(secrets[strings.ToLower(name)], values...)
			continue
		}
		query[name] = values
	}

	return Key{
		Host:       strings.ToLower(u.Host),
		Path:       u.EscapedPath(),
		Query:      query,
		Credential: credentialDigest(secrets),
	}, nil
}

// credentialDigest hashes the sensitive parameters in a canonical order.
func credentialDigest(secrets url.Values) string {
	if len(secrets) == 0 {
		return ""
	}
	for name := range secrets {
		sort.Strings(secrets[name])
	}
	// Encode sorts by name and escapes separators inside values.
	sum := sha256.Sum256([]byte(secrets.Encode()))
	return hex.EncodeToString(sum[:16])
}

// String generates a deterministic cache key string.
// Format: tilefetch:host/path:param1=val1:param2=val2a,val2b[:cred=digest]
//
// Example:
//
//	tilefetch:tiles.example.com/14/8802/5373.pbf:style=dark:cred=9f86d081884c7d659a2feaa0c55ad015
func (k Key) String() string {
	parts := []string{"tilefetch"}

	location := k.Host
	if path := strings.Trim(k.Path, "/"); path != "" {
		location += "/" + path
	}
	parts = append(parts, location)

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
		}
	}

	if k.Credential != "" {
		parts = append(parts, "cred="+k.Credential)
	}

	return strings.Join(parts, ":")
}
