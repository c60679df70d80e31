package extract

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/andybalholm/cascadia"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// CompileSelector validates a CSS selector. Invalid selectors wrap ErrParse.
func CompileSelector(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(strings.TrimSpace(selector))
	if err != nil {
		return nil, fmt.Errorf("%w: selector %q: %v", ErrParse, selector, err)
	}
	return sel, nil
}

// Selector extracts the first element matching selector. The content is
// the element's block-aware text; the excerpt is the element as markdown
// with links resolved against pageURL.
func Selector(body []byte, selector, pageURL string) (Representation, error) {
	sel, err := CompileSelector(selector)
	if err != nil {
		return Representation{}, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return Representation{}, err
	}

	node := sel.MatchFirst(doc)
	if node == nil {
		return Representation{}, fmt.Errorf("%w: %q", ErrSelectorNotFound, selector)
	}

	text := NodeText(node)
	excerpt := htmlToMarkdown(renderNode(node), pageURL, text)
	return newRepresentation(KindSelector, text, pageTitle(doc), pageURL, excerpt), nil
}

// htmlToMarkdown converts an HTML fragment for display, falling back to
// plain text when conversion fails or is empty.
func htmlToMarkdown(fragment, pageURL, fallback string) string {
	if fragment == "" {
		return fallback
	}
	var opts []converter.ConvertOptionFunc
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	md, err := mdConverter.ConvertString(fragment, opts...)
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}
