// Package feed parses Atom 1.0 and RSS 2.0 / RDF feeds using encoding/xml.
//
// The format is detected from the root element:
//   - <feed ...> -> Atom 1.0
//   - <rss ...> or <rdf:RDF ...> -> RSS
//
// Non-UTF-8 feeds are decoded from their XML declaration.
package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
)

// ErrParse is returned for unparseable XML or an unknown root element.
var ErrParse = errors.New("feed: parse error")

// Entry represents one item in a feed.
type Entry struct {
	GUID      string    `json:"guid"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary"`
	Published string    `json:"published"`
	Date      time.Time `json:"date,omitzero"` // Published parsed; zero when unknown
	Author    string    `json:"author"`
}

// Feed represents a parsed Atom or RSS feed.
type Feed struct {
	Format  string  `json:"format"` // "atom" | "rss"
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Entries []Entry `json:"entries"`
}

// Latest returns the first entry in document order, which publishers put
// most recent first. ok is false for an empty feed.
func (f *Feed) Latest() (Entry, bool) {
	if len(f.Entries) == 0 {
		return Entry{}, false
	}
	return f.Entries[0], true
}

var stripTags = bluemonday.StrictPolicy()

// Parse auto-detects and parses Atom or RSS XML.
func Parse(data []byte) (*Feed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	switch detectFormat(data) {
	case "atom":
		return parseAtom(data)
	case "rss":
		return parseRSS(data)
	default:
		return nil, fmt.Errorf("%w: unknown format (expected <feed> or <rss>)", ErrParse)
	}
}

func newDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	// Decoding stays strict so a truncated body fails instead of yielding a
	// partial entry. Named HTML entities are still accepted.
	d.Entity = xml.HTMLEntity
	return d
}

func detectFormat(data []byte) string {
	d := newDecoder(data)
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "feed":
				return "atom"
			case "rss", "rdf":
				return "rss"
			}
			return ""
		}
	}
}

// --- Atom 1.0 ---

type atomFeed struct {
	Title   atomText    `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomText struct {
	Type  string `xml:"type,attr"`
	Text  string `xml:",chardata"`
	Inner string `xml:",innerxml"`
}

// String returns plain text whatever the declared type.
func (t atomText) String() string {
	switch t.Type {
	case "xhtml":
		return cleanText(t.Inner, true)
	case "html":
		return cleanText(t.Text, true)
	default:
		return cleanText(t.Text, false)
	}
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     atomText     `xml:"title"`
	Links     []atomLink   `xml:"link"`
	Summary   atomText     `xml:"summary"`
	Published string       `xml:"published"`
	Updated   string       `xml:"updated"`
	Authors   []atomAuthor `xml:"author"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

func parseAtom(data []byte) (*Feed, error) {
	var root atomFeed
	if err := newDecoder(data).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: atom: %v", ErrParse, err)
	}

	feed := &Feed{
		Format:  "atom",
		Title:   root.Title.String(),
		Link:    alternateLink(root.Links),
		Entries: make([]Entry, 0, len(root.Entries)),
	}

	for _, entry := range root.Entries {
		link := alternateLink(entry.Links)
		guid := strings.TrimSpace(entry.ID)
		if guid == "" {
			guid = link
		}

		published := strings.TrimSpace(entry.Published)
		if published == "" {
			published = strings.TrimSpace(entry.Updated)
		}

		var author string
		if len(entry.Authors) > 0 {
			author = strings.TrimSpace(entry.Authors[0].Name)
		}

		feed.Entries = append(feed.Entries, Entry{
			GUID:      guid,
			Title:     entry.Title.String(),
			Link:      link,
			Summary:   entry.Summary.String(),
			Published: published,
			Date:      parseDate(published),
			Author:    author,
		})
	}
	return feed, nil
}

// alternateLink prefers rel="alternate" (or no rel), then the first href.
func alternateLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

// --- RSS 2.0 / RDF ---

type rssRoot struct {
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"` // RDF puts items beside the channel
}

type rssChannel struct {
	Title string    `xml:"title"`
	Link  string    `xml:"link"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	DCDate      string `xml:"date"` // dc:date
	Author      string `xml:"author"`
	Creator     string `xml:"creator"` // dc:creator
}

func parseRSS(data []byte) (*Feed, error) {
	var root rssRoot
	if err := newDecoder(data).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: rss: %v", ErrParse, err)
	}

	items := root.Channel.Items
	if len(items) == 0 {
		items = root.Items
	}

	feed := &Feed{
		Format:  "rss",
		Title:   cleanText(root.Channel.Title, true),
		Link:    strings.TrimSpace(root.Channel.Link),
		Entries: make([]Entry, 0, len(items)),
	}

	for _, item := range items {
		author := strings.TrimSpace(item.Author)
		if author == "" {
			author = strings.TrimSpace(item.Creator)
		}
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = strings.TrimSpace(item.Link)
		}
		published := strings.TrimSpace(item.PubDate)
		if published == "" {
			published = strings.TrimSpace(item.DCDate)
		}

		feed.Entries = append(feed.Entries, Entry{
			GUID:      guid,
			Title:     cleanText(item.Title, true),
			Link:      strings.TrimSpace(item.Link),
			Summary:   cleanText(item.Description, true),
			Published: published,
			Date:      parseDate(published),
			Author:    author,
		})
	}
	return feed, nil
}

// cleanText strips markup when asHTML is set and collapses whitespace.
func cleanText(s string, asHTML bool) string {
	if asHTML && strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(stripTags.Sanitize(s))
	}
	return strings.Join(strings.Fields(s), " ")
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
