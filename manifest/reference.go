// Package manifest holds the data exchanged between the collector, the
// mirror writer and report sinks: resource references, the per-page
// manifest, the page identity and the final report.
package manifest

// Reference pairs a remote resource with the path it is saved under,
// relative to <dest>/<hostname>/.
type Reference struct {
	Source      string `json:"source"`      // absolute URL, empty = skip
	Destination string `json:"destination"` // relative path, never starts with '/'
}

// Manifest is the ordered set of references discovered on one page.
// Images are deduplicated by source; stylesheets and scripts are not.
type Manifest struct {
	Images  []Reference `json:"images"`
	Scripts []Reference `json:"scripts"`

	seen map[string]struct{}
}

// AddImage appends ref to the image group unless its source is empty or
// already present. First occurrence wins. Reports whether ref was added.
func (m *Manifest) AddImage(ref Reference) bool {
	if ref.Source == "" {
		return false
	}
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if _, dup := m.seen[ref.Source]; dup {
		return false
	}
	m.seen[ref.Source] = struct{}{}
	m.Images = append(m.Images, ref)
	return true
}

// HasImage reports whether source was already recorded in the image group.
func (m *Manifest) HasImage(source string) bool {
	_, ok := m.seen[source]
	return ok
}

// AddScript appends ref to the stylesheet/script group. Duplicates are kept.
func (m *Manifest) AddScript(ref Reference) {
	m.Scripts = append(m.Scripts, ref)
}

// All returns images followed by scripts, in discovery order.
func (m *Manifest) All() []Reference {
	out := make([]Reference, 0, m.Len())
	out = append(out, m.Images...)
	return append(out, m.Scripts...)
}

// Len is the total number of references.
func (m *Manifest) Len() int {
	return len(m.Images) + len(m.Scripts)
}

// Link is an anchor found on the page. Display only; never downloaded.
type Link struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// Navigation is the outcome of loading a document into a source.
type Navigation struct {
	URL        string // final URL after redirects
	StatusCode int    // 0 when the source could not observe it
}
