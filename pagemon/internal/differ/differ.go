// Package differ decides whether a freshly extracted representation is new,
// changed or unchanged relative to the stored snapshot.
package differ

import (
	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/pagemon/internal/store"
)

// Outcome classifies a comparison.
type Outcome int

const (
	Unchanged Outcome = iota
	Changed
	FirstSeen
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case FirstSeen:
		return "first_seen"
	default:
		return "unchanged"
	}
}

// Result carries the outcome with both sides. Old is nil for FirstSeen.
type Result struct {
	Outcome Outcome
	Old     *store.Snapshot
	New     extract.Representation
}

// Notifiable reports whether the outcome warrants a notification.
func (r Result) Notifiable() bool {
	return r.Outcome != Unchanged
}

// Compare classifies rep against prev by exact digest equality. A different
// extractor kind counts as a change even if the digests match.
func Compare(prev *store.Snapshot, rep extract.Representation) Result {
	res := Result{Old: prev, New: rep}
	switch {
	case prev == nil:
		res.Outcome = FirstSeen
	case prev.Kind != rep.Kind || digestOf(prev.Digest, prev.Content) != digestOf(rep.Digest, rep.Content):
		res.Outcome = Changed
	default:
		res.Outcome = Unchanged
	}
	return res
}

// digestOf falls back to hashing content when a digest was not recorded.
func digestOf(digest, content string) string {
	if digest != "" {
		return digest
	}
	return extract.Digest(content)
}
