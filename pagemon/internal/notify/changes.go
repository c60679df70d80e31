package notify

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/pagemon/extract"
)

// maxChangeLines bounds the added/removed lines listed in a change alert.
const maxChangeLines = 3

// lineChanges returns the lines only in next (added) and only in prev
// (removed), each deduplicated and in document order.
func lineChanges(prev, next string) (added, removed []string) {
	prevSet := lineSet(prev)
	nextSet := lineSet(next)
	added = missingFrom(next, prevSet)
	removed = missingFrom(prev, nextSet)
	return added, removed
}

func lineSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range strings.Split(s, "\n") {
		set[l] = true
	}
	return set
}

func missingFrom(s string, other map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range strings.Split(s, "\n") {
		if l == "" || other[l] || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// changeFields renders added and removed lines as embed fields, listing
// at most maxChangeLines of each.
func changeFields(added, removed []string) []field {
	var fields []field
	if len(added) > 0 {
		fields = append(fields, field{Name: fmt.Sprintf("Added (%d)", len(added)), Value: listLines("+ ", added)})
	}
	if len(removed) > 0 {
		fields = append(fields, field{Name: fmt.Sprintf("Removed (%d)", len(removed)), Value: listLines("- ", removed)})
	}
	return fields
}

func listLines(prefix string, lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i == maxChangeLines {
			fmt.Fprintf(&b, "\n… and %d more", len(lines)-maxChangeLines)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(extract.Truncate(l, 200))
	}
	return extract.Truncate(b.String(), maxFieldValue)
}

// changeSummary is the "+2 / -1 links" line of a change alert.
func changeSummary(kind extract.Kind, added, removed int) string {
	unit := "lines"
	if kind == extract.KindSummary {
		unit = "links"
	}
	return fmt.Sprintf("+%d / -%d %s", added, removed, unit)
}
