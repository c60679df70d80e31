// Package registry loads the list of monitoring targets from a CSV file.
//
// The file has a header row naming its columns. "id" and "url" are
// required; "name" and "selector" are optional. Column order is free and
// unknown columns are ignored:
//
//	id,name,url,selector
//	jma_extra,JMA extra feed,https://www.data.jma.go.jp/developer/xml/feed/extra.xml,
//	books,Books,https://books.toscrape.com/,article.product_pod h3 a
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformedRegistry is returned when the registry cannot be used at all.
// It is fatal for a run.
var ErrMalformedRegistry = errors.New("registry: malformed")

// Target is one monitored URL with its extraction configuration.
type Target struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
}

// SummaryMode reports whether the target has no selector, meaning the page
// is summarised (HTML) or its latest entry is taken (feeds).
func (t Target) SummaryMode() bool {
	return t.Selector == ""
}

// Load reads and parses the registry file at path.
func Load(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedRegistry, path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads targets from CSV. The result keeps file order.
func Parse(r io.Reader) ([]Target, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedRegistry)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedRegistry, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "url"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", ErrMalformedRegistry, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var targets []Target
	seen := make(map[string]int)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRegistry, err)
		}
		line, _ := cr.FieldPos(0)
		// Short rows are fine (a trailing empty selector is often omitted).
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: line %d: got %d fields, header has %d",
				ErrMalformedRegistry, line, len(rec), len(header))
		}

		t := Target{
			ID:       field(rec, "id"),
			Name:     field(rec, "name"),
			URL:      field(rec, "url"),
			Selector: field(rec, "selector"),
		}
		if t.ID == "" && t.URL == "" && t.Name == "" && t.Selector == "" {
			continue
		}
		if t.ID == "" {
			return nil, fmt.Errorf("%w: line %d: empty id", ErrMalformedRegistry, line)
		}
		if t.URL == "" {
			return nil, fmt.Errorf("%w: line %d: target %q has no url", ErrMalformedRegistry, line, t.ID)
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate id %q (first on line %d)",
				ErrMalformedRegistry, line, t.ID, prev)
		}
		seen[t.ID] = line
		if t.Name == "" {
			t.Name = t.ID
		}
		targets = append(targets, t)
	}
	return targets, nil
}
