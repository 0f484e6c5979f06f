package uri

import (
	"strings"
	"unicode/utf8"
)

// MaxPathLen bounds the length of a synthesized path, in characters.
// Longer paths are truncated; colliding truncations overwrite each other.
const MaxPathLen = 255

var hostile = strings.NewReplacer(":", "_", "?", "_")

// Synthesize maps raw to a path relative to the mirror's hostname folder.
// References to hostname lose their origin; other absolute references keep
// their host as the first path segment. The result never starts with '/',
// never contains ':' or '?', and is at most MaxPathLen characters.
func Synthesize(raw, hostname string) string {
	dest := strings.TrimSpace(raw)
	if strings.HasPrefix(dest, "http") {
		dest = strings.TrimPrefix(dest, "https://"+hostname+"/")
		dest = strings.TrimPrefix(dest, "http://"+hostname+"/")
		dest = strings.TrimPrefix(dest, "https://")
		dest = strings.TrimPrefix(dest, "http://")
	}
	dest = trimEdges(dest)
	dest = hostile.Replace(dest)
	if utf8.RuneCountInString(dest) > MaxPathLen {
		dest = string([]rune(dest)[:MaxPathLen])
		dest = trimEdges(dest)
	}
	return dest
}

// trimEdges strips surrounding whitespace and every leading '/'.
func trimEdges(s string) string {
	for {
		t := strings.TrimLeft(strings.TrimSpace(s), "/")
		if t == s {
			return s
		}
		s = t
	}
}
