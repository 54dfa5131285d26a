// Package cache implements the bounded LRU response cache: URL
// normalization into cache keys (C3), the concurrency-safe LRU store
// with single-flight insert (C4), and its durable snapshot format.
package cache

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParamPattern matches a single tracking query parameter
// (utm_source, session_id, ref) directly in the raw path+query text,
// the same way the pattern it is grounded on does: it strips before
// the query string is ever parsed, not after.
var trackingParamPattern = regexp.MustCompile(`([&?])(?:utm_source|session_id|ref)=[^&]*(&|$)`)

// staticAssetExtensions lists the extensions for which query strings
// are dropped entirely when building a cache key.
var staticAssetExtensions = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg",
	".webp", ".ico", ".woff", ".woff2", ".ttf", ".eot",
}

// Key is a canonical cache key string.
type Key string

// Normalize builds a canonical Key from a request's Host header value
// (which may carry ":port") and its origin-form request target
// (path+query from the request line). It is pure and deterministic:
// the same (host, target) pair always yields the same Key, and
// re-normalizing an already-normalized (host, target) pair is a no-op.
func Normalize(host, target string) Key {
	host = strings.ToLower(stripPort(host))

	path := target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
	}

	if isStaticAsset(path) {
		return Key("http://" + host + path)
	}

	cleaned := trackingParamPattern.ReplaceAllString(target, "$1")
	cleaned = strings.TrimRight(cleaned, "?&")

	cleanPath := cleaned
	cleanQuery := ""
	if i := strings.IndexByte(cleaned, '?'); i >= 0 {
		cleanPath = cleaned[:i]
		cleanQuery = cleaned[i+1:]
	}

	sortedQuery := sortQuery(cleanQuery)
	if sortedQuery == "" {
		return Key("http://" + host + cleanPath)
	}
	return Key("http://" + host + cleanPath + "?" + sortedQuery)
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

func isStaticAsset(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range staticAssetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// sortQuery parses rawQuery, keeps the first value for each key, and
// re-emits the parameters in ascending key order.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values[k][0]))
	}
	return b.String()
}
