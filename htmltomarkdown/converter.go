// Package htmltomarkdown converts the markup of harvested items to Markdown.
package htmltomarkdown

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/fwojciec/listgrab"
	"github.com/microcosm-cc/bluemonday"
)

// Ensure Converter implements listgrab.Converter at compile time.
var _ listgrab.Converter = (*Converter)(nil)

// Converter sanitizes HTML with bluemonday and converts what is left to
// Markdown with html-to-markdown.
type Converter struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewConverter creates a new Converter.
func NewConverter() *Converter {
	policy := bluemonday.UGCPolicy()
	// Keep code block language hints.
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+-]+$`)).OnElements("code")

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Converter{policy: policy, conv: conv}
}

// Convert transforms HTML content into Markdown. Scripts, styles, event
// handlers and unsafe URLs are removed first.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", listgrab.Errorf(listgrab.EINVALID, "empty HTML input")
	}

	clean := c.policy.Sanitize(html)
	result, err := c.conv.ConvertString(clean)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(result), nil
}
