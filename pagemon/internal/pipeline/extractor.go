package pipeline

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/pagemon/internal/feed"
	"github.com/hazyhaar/pagemon/pagemon/internal/fetch"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
)

// Extractor turns a fetched body into a comparable representation.
type Extractor interface {
	Kind() extract.Kind
	Extract(res *fetch.Result, t registry.Target) (extract.Representation, error)
}

// ExtractorFor picks the extractor for a target: its selector when set,
// otherwise the feed or summary variant depending on the fetched kind.
func (p *Pipeline) ExtractorFor(t registry.Target, hint fetch.Kind) Extractor {
	switch {
	case !t.SummaryMode():
		return SelectorExtractor{}
	case hint == fetch.KindFeed:
		return FeedExtractor{}
	default:
		return SummaryExtractor{Options: p.cfg.Summary}
	}
}

// FeedExtractor represents a feed by its latest entry. Relative entry
// links are resolved against the feed's final URL.
type FeedExtractor struct{}

func (FeedExtractor) Kind() extract.Kind { return extract.KindFeed }

func (FeedExtractor) Extract(res *fetch.Result, t registry.Target) (extract.Representation, error) {
	f, err := feed.Parse(res.Body)
	if err != nil {
		return extract.Representation{}, fmt.Errorf("%w: %w", extract.ErrParse, err)
	}
	latest, _ := f.Latest()

	link := latest.Link
	if link == "" && isPermalink(latest.GUID) {
		link = latest.GUID
	}
	rep := extract.FeedEntry(latest.Title, extract.ResolveURL(pageURL(res, t), link), latest.Summary)
	rep.Published = latest.Date
	return rep, nil
}

// isPermalink reports whether an RSS guid doubles as the item URL.
func isPermalink(guid string) bool {
	return strings.HasPrefix(guid, "https://") || strings.HasPrefix(guid, "http://")
}

// SelectorExtractor represents a page by the first element matching the
// target's selector.
type SelectorExtractor struct{}

func (SelectorExtractor) Kind() extract.Kind { return extract.KindSelector }

func (SelectorExtractor) Extract(res *fetch.Result, t registry.Target) (extract.Representation, error) {
	return extract.Selector(res.Body, t.Selector, pageURL(res, t))
}

// SummaryExtractor represents a page by its title and principal links.
type SummaryExtractor struct {
	Options extract.SummaryOptions
}

func (SummaryExtractor) Kind() extract.Kind { return extract.KindSummary }

func (e SummaryExtractor) Extract(res *fetch.Result, t registry.Target) (extract.Representation, error) {
	return extract.Summary(res.Body, pageURL(res, t), e.Options)
}

// pageURL is the address relative links resolve against.
func pageURL(res *fetch.Result, t registry.Target) string {
	if res.FinalURL != "" {
		return res.FinalURL
	}
	return t.URL
}
