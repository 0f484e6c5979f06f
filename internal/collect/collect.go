// Package collect extracts the resource references of a rendered document
// and computes the attribute rewrites that make the saved copy point at
// local files.
//
// Collect is a pure transform over a parsed snapshot: it reads the tree and
// returns a manifest plus a list of rewrites. Apply is the only step that
// mutates the tree.
package collect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/dommirror/internal/uri"
	"github.com/hazyhaar/dommirror/manifest"
)

// Page tells the collector where the document came from.
type Page struct {
	// URL is the document URL after redirects. Relative src and href
	// values resolve against it (or against <base href> when present).
	URL string
	// Hostname is the mirror's hostname folder.
	Hostname string
}

// Rewrite sets Attr on Node to Value.
type Rewrite struct {
	Node  *html.Node
	Attr  string
	Value string
}

// Result is what one pass over a document produced.
type Result struct {
	Links    []manifest.Link
	Manifest manifest.Manifest
	Rewrites []Rewrite
}

// Parse builds a document tree from serialized HTML.
func Parse(content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("collect: parse: %w", err)
	}
	return doc, nil
}

// Collect walks anchors, images, picture sources, links and scripts in doc.
// The tree is left untouched.
func Collect(doc *goquery.Document, page Page) *Result {
	c := &collector{
		host: page.Hostname,
		base: documentBase(doc, page.URL),
		res:  &Result{},
	}

	doc.Find("a").Each(func(_ int, s *goquery.Selection) { c.link(s) })

	doc.Find("img").Each(func(_ int, s *goquery.Selection) { c.image(s) })
	doc.Find("picture > source").Each(func(_ int, s *goquery.Selection) { c.image(s) })

	doc.Find("link").Each(func(_ int, s *goquery.Selection) { c.script(s, "href") })
	doc.Find("script").Each(func(_ int, s *goquery.Selection) { c.script(s, "src") })

	return c.res
}

// Apply writes every rewrite into the tree.
func (r *Result) Apply() {
	for _, rw := range r.Rewrites {
		setAttr(rw.Node, rw.Attr, rw.Value)
	}
}

// Render serialises doc, doctype included.
func Render(doc *goquery.Document) (string, error) {
	var b strings.Builder
	for _, n := range doc.Nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("collect: render: %w", err)
		}
	}
	return b.String(), nil
}

type collector struct {
	host string
	base *url.URL
	res  *Result
}

func (c *collector) link(s *goquery.Selection) {
	href, _ := s.Attr("href")
	if href != "" {
		href = c.resolve(href)
	}
	c.res.Links = append(c.res.Links, manifest.Link{
		Title: strings.Join(strings.Fields(s.Text()), " "),
		Href:  href,
	})
}

func (c *collector) image(s *goquery.Selection) {
	if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" && !uri.IsData(src) {
		abs := c.resolve(src)
		dest := uri.Synthesize(abs, c.host)
		c.rewrite(s, "src", dest)
		c.res.Manifest.AddImage(manifest.Reference{
			Source:      uri.Normalize(abs, c.host),
			Destination: dest,
		})
	}
	if set, ok := s.Attr("srcset"); ok {
		c.rewrite(s, "srcset", c.srcset(set))
	}
}

func (c *collector) script(s *goquery.Selection, attr string) {
	raw, _ := s.Attr(attr)
	if strings.TrimSpace(raw) == "" || uri.IsData(raw) {
		return
	}
	abs := c.resolve(raw)
	dest := uri.Synthesize(abs, c.host)
	c.rewrite(s, attr, dest)
	c.res.Manifest.AddScript(manifest.Reference{
		Source:      uri.Normalize(abs, c.host),
		Destination: dest,
	})
}

func (c *collector) rewrite(s *goquery.Selection, attr, value string) {
	c.res.Rewrites = append(c.res.Rewrites, Rewrite{Node: s.Get(0), Attr: attr, Value: value})
}

// resolve mirrors how a browser reflects URL attributes: relative values
// become absolute against the document base. Unparseable values are kept.
func (c *collector) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if c.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return c.base.ResolveReference(ref).String()
}

// documentBase is the page URL, overridden by the first <base href>.
func documentBase(doc *goquery.Document, pageURL string) *url.URL {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}
	return base
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
