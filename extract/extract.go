// Package extract reduces fetched content to a normalized representation
// that can be compared for equality between runs.
//
// Three variants exist, one per target configuration:
//   - Selector: the first element matching a CSS selector, as block-aware text.
//   - Summary:  the page title plus a bounded list of principal links.
//   - Feed:     the latest feed entry's title and link (see FeedEntry).
//
// Output is deterministic: identical input yields byte-identical Content.
package extract

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrParse is returned for content that cannot be parsed, and for
	// invalid CSS selectors.
	ErrParse = errors.New("extract: parse error")

	// ErrSelectorNotFound is returned when no element matches the
	// configured selector. The page itself was reachable.
	ErrSelectorNotFound = errors.New("extract: selector matched no element")
)

// Kind identifies the extractor that produced a Representation.
type Kind string

const (
	KindFeed     Kind = "feed"
	KindSelector Kind = "selector"
	KindSummary  Kind = "summary"
)

// Representation is the comparable form of a target's content.
type Representation struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"` // normalized; the only field compared
	Digest  string `json:"digest"`  // hex SHA-256 of Content
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
	// Excerpt is markdown for notifications. Never compared.
	Excerpt string `json:"-"`
	// Published is the feed entry's date when the feed carries one.
	// Never compared.
	Published time.Time `json:"-"`
}

func newRepresentation(kind Kind, content, title, link, excerpt string) Representation {
	return Representation{
		Kind:    kind,
		Content: content,
		Digest:  Digest(content),
		Title:   title,
		Link:    link,
		Excerpt: excerpt,
	}
}

// Digest returns the hex SHA-256 of s.
func Digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}

// FeedEntry builds the representation of a feed's latest entry. An empty
// feed (no title, no link) has empty content, which still compares.
func FeedEntry(title, link, summary string) Representation {
	title = collapse(title)
	link = strings.TrimSpace(link)
	content := ""
	if title != "" || link != "" {
		content = title + "\n" + link
	}
	return newRepresentation(KindFeed, content, title, link, Truncate(summary, 500))
}

// ResolveURL resolves ref against base. ref comes back unchanged when it is
// empty or either side does not parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func parseHTML(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrParse, err)
	}
	return doc, nil
}

// blockTags start a new line in normalized text.
var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// skipTags never contribute text.
var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Head: true,
}

// NodeText returns the visible text of n, one line per block element,
// whitespace collapsed inside lines, empty lines dropped.
func NodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.DataAtom] {
				return
			}
			if blockTags[n.DataAtom] {
				sb.WriteByte('\n')
				defer sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeLines(sb.String())
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// collapse folds all whitespace runs into single spaces and trims.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most max runes, ending with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

// findFirst returns the first element with the given tag in document order.
func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == tag {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, tag); n != nil {
			return n
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
