// Package uri turns resource references found in a document into the two
// forms a mirror needs: an absolute URL to fetch, and a relative path to
// save under.
package uri

import "strings"

// Normalize returns the absolute URL to fetch for raw.
//
// Values already starting with "https" are returned unchanged. Everything
// else, including protocol-relative and plain "http://" values, is anchored
// at the document root of hostname. Empty input yields empty output.
func Normalize(raw, hostname string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "https") {
		return raw
	}
	return "https://" + hostname + "/" + raw
}

// IsData reports whether raw is an inline data: URI.
func IsData(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "data:")
}
