package dommirror

import (
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/dommirror/internal/collect"
	"github.com/hazyhaar/dommirror/manifest"
)

// display prints the page metrics and, when the document was mirrored
// before, when that was.
func (m *Mirror) display(id manifest.Identity, res *collect.Result) {
	fmt.Fprintf(m.out, "Site: %s\n", id.Hostname)
	fmt.Fprintf(m.out, "Page: %s\n", id.Pathname)
	fmt.Fprintf(m.out, "Number of links: %d\n", len(res.Links))
	fmt.Fprintf(m.out, "Number of images: %d\n", len(res.Manifest.Images))
	fmt.Fprintf(m.out, "Number of css/scripts: %d\n", len(res.Manifest.Scripts))

	if at, ok := m.lastVisited(id); ok {
		fmt.Fprintf(m.out, "Last visited: %s\n", at.UTC().Format(time.RFC3339Nano))
	}
}

// lastVisited is the modification time of the saved document, if any.
func (m *Mirror) lastVisited(id manifest.Identity) (time.Time, bool) {
	docPath, err := m.writer.DocumentPath(id)
	if err != nil {
		return time.Time{}, false
	}
	info, err := os.Stat(docPath)
	if err != nil || info.IsDir() {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
