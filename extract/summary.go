package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Principal-link strategies.
const (
	// StrategyLandmarks takes anchors from the first semantic content
	// region found (main, article, [role=main], #content, #main), or from
	// the body minus nav/header/footer/aside when there is none.
	StrategyLandmarks = "landmarks"
	// StrategyReadability takes anchors from the readability article.
	StrategyReadability = "readability"
)

// SummaryOptions tunes the summary variant.
type SummaryOptions struct {
	Strategy string `yaml:"strategy"`  // Default: landmarks.
	MaxLinks int    `yaml:"max_links"` // Default: 20.
}

func (o *SummaryOptions) defaults() {
	if o.Strategy == "" {
		o.Strategy = StrategyLandmarks
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = 20
	}
}

// Validate rejects unknown strategies.
func (o SummaryOptions) Validate() error {
	switch o.Strategy {
	case "", StrategyLandmarks, StrategyReadability:
		return nil
	}
	return fmt.Errorf("extract: unknown summary strategy %q (want %s or %s)",
		o.Strategy, StrategyLandmarks, StrategyReadability)
}

// Link is one principal link of a page.
type Link struct {
	Text string
	URL  string
}

// landmarkSelectors are tried in order; the first with matches wins.
var landmarkSelectors = []cascadia.Selector{
	cascadia.MustCompile("main"),
	cascadia.MustCompile("article"),
	cascadia.MustCompile("[role=main]"),
	cascadia.MustCompile("#content"),
	cascadia.MustCompile("#main"),
}

// chromeTags are skipped when falling back to the whole body.
var chromeTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
}

// Summary reduces an HTML page to its title and principal links:
//
//	<title>
//	<link text> <absolute url>
//	...
func Summary(body []byte, pageURL string, opts SummaryOptions) (Representation, error) {
	opts.defaults()
	if err := opts.Validate(); err != nil {
		return Representation{}, err
	}

	doc, err := parseHTML(body)
	if err != nil {
		return Representation{}, err
	}
	base := baseURL(doc, pageURL)

	var links []Link
	switch opts.Strategy {
	case StrategyReadability:
		links, err = readabilityLinks(body, base, opts.MaxLinks)
		if err != nil {
			return Representation{}, err
		}
	default:
		links = landmarkLinks(doc, base, opts.MaxLinks)
	}

	title := pageTitle(doc)

	var content, excerpt strings.Builder
	content.WriteString(title)
	for _, l := range links {
		content.WriteByte('\n')
		content.WriteString(l.Text)
		content.WriteByte(' ')
		content.WriteString(l.URL)

		if excerpt.Len() > 0 {
			excerpt.WriteByte('\n')
		}
		fmt.Fprintf(&excerpt, "- [%s](%s)", escapeMarkdownLinkText(l.Text), l.URL)
	}
	return newRepresentation(KindSummary, content.String(), title, pageURL, excerpt.String()), nil
}

func landmarkLinks(doc *html.Node, base *url.URL, max int) []Link {
	c := newLinkCollector(base, max)
	for _, sel := range landmarkSelectors {
		regions := sel.MatchAll(doc)
		if len(regions) == 0 {
			continue
		}
		for _, r := range regions {
			c.walk(r, nil)
		}
		return c.links
	}

	body := findFirst(doc, atom.Body)
	if body == nil {
		body = doc
	}
	c.walk(body, chromeTags)
	return c.links
}

func readabilityLinks(body []byte, base *url.URL, max int) ([]Link, error) {
	if base == nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return nil, fmt.Errorf("%w: readability: %v", ErrParse, err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return nil, nil
	}
	frag, err := parseHTML([]byte(article.Content))
	if err != nil {
		return nil, err
	}
	c := newLinkCollector(base, max)
	c.walk(frag, nil)
	return c.links, nil
}

type linkCollector struct {
	base  *url.URL
	max   int
	seen  map[string]bool
	links []Link
}

func newLinkCollector(base *url.URL, max int) *linkCollector {
	return &linkCollector{base: base, max: max, seen: make(map[string]bool)}
}

func (c *linkCollector) walk(n *html.Node, skip map[atom.Atom]bool) {
	if len(c.links) >= c.max {
		return
	}
	if n.Type == html.ElementNode {
		if skip[n.DataAtom] || skipTags[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.A {
			c.add(n)
			return
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch, skip)
	}
}

func (c *linkCollector) add(a *html.Node) {
	abs, ok := resolveHref(c.base, getAttr(a, "href"))
	if !ok || c.seen[abs] {
		return
	}
	c.seen[abs] = true

	text := collapse(NodeText(a))
	if text == "" {
		text = collapse(getAttr(a, "title"))
	}
	if text == "" {
		text = abs
	}
	c.links = append(c.links, Link{Text: text, URL: abs})
}

// resolveHref turns an href into an absolute http(s) URL without fragment.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), true
}

// baseURL honours <base href> and falls back to the page URL.
func baseURL(doc *html.Node, pageURL string) *url.URL {
	page, _ := url.Parse(pageURL)
	if b := findFirst(doc, atom.Base); b != nil {
		if href := getAttr(b, "href"); href != "" {
			if ref, err := url.Parse(href); err == nil {
				if page != nil {
					return page.ResolveReference(ref)
				}
				return ref
			}
		}
	}
	return page
}

// pageTitle returns <title>, or the first <h1> when the title is empty.
func pageTitle(doc *html.Node) string {
	if t := findFirst(doc, atom.Title); t != nil {
		if s := collapse(NodeText(t)); s != "" {
			return s
		}
	}
	if h := findFirst(doc, atom.H1); h != nil {
		return collapse(NodeText(h))
	}
	return ""
}

func escapeMarkdownLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}
