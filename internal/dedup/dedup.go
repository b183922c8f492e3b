// Package dedup removes exact and near-duplicate articles from a batch.
package dedup

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/cariboufeeds/curator/internal/feed"
)

// DefaultThreshold is the title similarity ratio at or above which two
// articles are treated as the same story.
const DefaultThreshold = 85

// Result counts what a dedup pass rejected.
type Result struct {
	Input      int
	Retained   int
	ExactDupes int
	NearDupes  int
}

// Deduplicator filters a batch by exact URL hash and fuzzy title similarity.
// Callers should place priority articles first so they win ties.
type Deduplicator struct {
	threshold int
}

// New creates a Deduplicator with the given similarity threshold (0 uses the
// default).
func New(threshold int) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold}
}

// Deduplicate returns the retained articles in input order plus counts.
//
// Every candidate is compared against all previously retained titles, so the
// pass is quadratic in batch size. Acceptable at the few hundred articles a
// run sees; revisit with blocking by source or time window before scaling up.
func (d *Deduplicator) Deduplicate(articles []feed.Article) ([]feed.Article, Result) {
	r := Result{Input: len(articles)}

	seenHashes := make(map[string]bool, len(articles))
	var seenTitles []string
	var unique []feed.Article

	for _, a := range articles {
		if seenHashes[a.URLHash] {
			r.ExactDupes++
			continue
		}

		if d.isNearDuplicate(a.NormalizedTitle, seenTitles) {
			r.NearDupes++
			continue
		}

		seenHashes[a.URLHash] = true
		seenTitles = append(seenTitles, a.NormalizedTitle)
		unique = append(unique, a)
	}

	r.Retained = len(unique)
	return unique, r
}

func (d *Deduplicator) isNearDuplicate(title string, seenTitles []string) bool {
	if title == "" {
		return false
	}
	for _, seen := range seenTitles {
		if fuzzy.Ratio(title, seen) >= d.threshold {
			return true
		}
	}
	return false
}
