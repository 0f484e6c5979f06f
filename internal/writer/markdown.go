package writer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/dommirror/manifest"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// mdPolicy strips scripts, forms and event handlers before conversion so
// only readable content reaches the markdown.
var mdPolicy = bluemonday.UGCPolicy()

type frontmatter struct {
	Address  string `yaml:"address"`
	Hostname string `yaml:"hostname"`
	Document string `yaml:"document"`
	SavedAt  string `yaml:"saved_at"`
}

// writeMarkdown renders document as markdown with YAML front matter next to
// docPath ("page.html" -> "page.md"). Links stay relative, so they resolve
// against the mirrored files.
func writeMarkdown(page manifest.Identity, document, docPath string) (string, error) {
	body, err := mdConverter.ConvertString(mdPolicy.Sanitize(document))
	if err != nil {
		return "", fmt.Errorf("convert: %w", err)
	}

	fm, err := yaml.Marshal(frontmatter{
		Address:  page.Address,
		Hostname: page.Hostname,
		Document: page.Filename,
		SavedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(body))
	buf.WriteString("\n")

	target := strings.TrimSuffix(strings.TrimSuffix(docPath, ".html"), ".htm") + ".md"
	if err := writeAtomic(target, buf.Bytes()); err != nil {
		return "", err
	}
	return target, nil
}
