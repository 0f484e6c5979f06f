package manifest

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Identity names a mirrored page on disk. Derived once from the address.
type Identity struct {
	Address  string `json:"address"`
	Hostname string `json:"hostname"` // URL host, port included
	Pathname string `json:"pathname"`
	Filename string `json:"filename"` // relative to <dest>/<hostname>/, ends in .htm or .html
}

// DefaultFilename is used for root documents.
const DefaultFilename = "index.html"

// NewIdentity parses address and derives the document filename.
func NewIdentity(address string) (Identity, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Identity{}, fmt.Errorf("manifest: parse address: %w", err)
	}
	if u.Host == "" {
		return Identity{}, fmt.Errorf("manifest: address %q has no host", address)
	}
	return Identity{
		Address:  address,
		Hostname: u.Host,
		Pathname: u.Path,
		Filename: documentFilename(u.Path),
	}, nil
}

func documentFilename(p string) string {
	// Dot segments are resolved first so the document stays under the
	// hostname folder.
	clean := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	doc := strings.TrimLeft(clean, "/")
	if doc == "" {
		return DefaultFilename
	}
	if strings.HasSuffix(doc, "/") {
		doc += DefaultFilename
	}
	doc = strings.NewReplacer(":", "_", "?", "_").Replace(doc)
	if !strings.HasSuffix(doc, ".htm") && !strings.HasSuffix(doc, ".html") {
		doc += ".html"
	}
	return doc
}
