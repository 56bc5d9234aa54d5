// Package urlutil builds request URLs against a configured server base.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize trims whitespace and trailing slashes from a base URL.
func Normalize(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}

// Join builds an absolute URL from a base and a path. An absolute http(s)
// path is returned unchanged.
func Join(base, path string) string {
	base = Normalize(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// Segments joins path segments, escaping each one, onto base. Segments may
// contain slashes; they never split the path.
func Segments(base string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString(Normalize(base))
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}
