package collect

import (
	"strings"

	"github.com/hazyhaar/dommirror/internal/uri"
	"github.com/hazyhaar/dommirror/manifest"
)

// srcset rewrites a responsive image candidate list and records each
// candidate in the image group. Candidates are taken as written; the
// browser does not resolve srcset the way it resolves src.
func (c *collector) srcset(set string) string {
	root := "https://" + c.host + "/"
	var out []string
	for _, entry := range strings.Split(set, ",") {
		raw, descriptor := splitCandidate(entry)
		if raw == "" || uri.IsData(raw) {
			continue
		}
		dest := uri.Synthesize(raw, c.host)
		source := uri.Normalize(raw, c.host)

		switch {
		case dest == "":
			// Nothing left to point at, e.g. the bare site root.
		case descriptor != "":
			out = append(out, dest+" "+descriptor)
		default:
			out = append(out, dest)
		}

		if source != root {
			c.res.Manifest.AddImage(manifest.Reference{Source: source, Destination: dest})
		}
	}
	return strings.Join(out, ", ")
}

// splitCandidate splits "url 2x" on the first run of whitespace.
func splitCandidate(entry string) (raw, descriptor string) {
	entry = strings.TrimSpace(entry)
	i := strings.IndexAny(entry, " \t\n\r\f")
	if i < 0 {
		return entry, ""
	}
	return entry[:i], strings.TrimSpace(entry[i:])
}
