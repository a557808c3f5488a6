package render

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// htmlConverter turns rich HTML outputs (pandas tables, widgets' fallbacks)
// into markdown. Scripts and styles are stripped before conversion.
type htmlConverter struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

func newHTMLConverter() *htmlConverter {
	return &htmlConverter{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (h *htmlConverter) Sanitize(html string) string {
	return h.policy.Sanitize(html)
}

func (h *htmlConverter) Convert(html string) (string, error) {
	md, err := h.conv.ConvertString(h.Sanitize(html))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
