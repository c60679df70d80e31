package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL canonicalises a target URL for duplicate detection:
// lowercase scheme and host, no fragment, no trailing slash, sorted query.
// http and https stay distinct.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("normalize %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("normalize %q: missing host", raw)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				if buf.Len() > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}
	return parsed.String(), nil
}

// DuplicateURLs groups target IDs that point at the same normalized URL
// with the same selector. Only groups of two or more are returned, keyed by
// the normalized URL. Targets whose URL does not normalize are ignored.
func DuplicateURLs(targets []Target) map[string][]string {
	groups := make(map[string][]string)
	for _, t := range targets {
		norm, err := NormalizeURL(t.URL)
		if err != nil {
			continue
		}
		key := norm
		if t.Selector != "" {
			key += " " + t.Selector
		}
		groups[key] = append(groups[key], t.ID)
	}
	for k, ids := range groups {
		if len(ids) < 2 {
			delete(groups, k)
		}
	}
	return groups
}
