package fetcher

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// IsSufficient reports whether an HTTP response body already holds the page
// content, so no browser is needed. SPA shells with little visible text fail.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}

	lower := bytes.ToLower(body)
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, []byte(ind)) {
			return false
		}
	}

	text := visibleText(body)
	if text < 200 {
		return false
	}
	// Under 10% text is likely a script bundle with a mount point.
	return float64(text)/float64(len(body)) >= 0.10
}

var spaIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"<noscript>you need to enable javascript",
	"<noscript>enable javascript",
}

// visibleText counts non-whitespace bytes of text outside script and style.
func visibleText(body []byte) int {
	z := html.NewTokenizer(bytes.NewReader(body))
	n, skip := 0, 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.StartTagToken:
			if isRawText(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawText(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				n += len(strings.Join(strings.Fields(string(z.Text())), ""))
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	return string(name) == "script" || string(name) == "style"
}
