// Package redact strips credentials and API keys from URLs before they
// reach logs or user-facing messages.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

// Mask replaces the value of every sensitive query parameter.
const Mask = "xxx"

var sensitiveParams = map[string]struct{}{
	"key":          {},
	"api_key":      {},
	"apikey":       {},
	"access_token": {},
	"token":        {},
	"secret":       {},
	"password":     {},
	"signature":    {},
	"sig":          {},
}

// fallbackPattern is used when the URL cannot be parsed.
var fallbackPattern = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token|token|secret|password|signature|sig)=)[^&#]*`)

// IsSensitiveParam reports whether a query parameter carries a secret.
func IsSensitiveParam(name string) bool {
	_, ok := sensitiveParams[strings.ToLower(name)]
	return ok
}

// SensitiveKey returns rawURL with sensitive query values masked and any
// userinfo password removed. Parameter order is preserved.
func SensitiveKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallbackPattern.ReplaceAllString(rawURL, "${1}"+Mask)
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), Mask)
		}
	}

	if u.RawQuery != "" {
		u.RawQuery = maskQuery(u.RawQuery)
	}

	return u.String()
}

func maskQuery(rawQuery string) string {
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		name, _, hasValue := strings.Cut(part, "=")
		if !hasValue {
			continue
		}
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if IsSensitiveParam(decoded) {
			parts[i] = name + "=" + Mask
		}
	}
	return strings.Join(parts, "&")
}
