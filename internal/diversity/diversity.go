// Package diversity bounds how many accepted articles may share a source.
package diversity

import (
	"sort"

	"github.com/cariboufeeds/curator/internal/feed"
)

// Limiter applies per-source caps to a candidate list.
type Limiter struct {
	defaultCap  int
	priorityCap int
	typeCaps    map[string]int
	sourceTypes map[string]string
}

// New creates a Limiter. typeCaps overrides the default cap per source type;
// sourceTypes maps a source name to its type.
func New(defaultCap, priorityCap int, typeCaps map[string]int, sourceTypes map[string]string) *Limiter {
	return &Limiter{
		defaultCap:  defaultCap,
		priorityCap: priorityCap,
		typeCaps:    typeCaps,
		sourceTypes: sourceTypes,
	}
}

// Apply sorts candidates priority-first then by descending score (stable, so
// ties keep input order) and admits each while its source's running count is
// below the applicable cap. Articles dropped here are gone for this run,
// not deferred.
func (l *Limiter) Apply(articles []feed.Article) []feed.Article {
	sorted := make([]feed.Article, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsPriority != sorted[j].IsPriority {
			return sorted[i].IsPriority
		}
		return sorted[i].Score > sorted[j].Score
	})

	counts := make(map[string]int)
	var admitted []feed.Article
	for _, a := range sorted {
		if counts[a.Source] < l.capFor(a) {
			admitted = append(admitted, a)
			counts[a.Source]++
		}
	}
	return admitted
}

func (l *Limiter) capFor(a feed.Article) int {
	if a.IsPriority {
		return l.priorityCap
	}
	if typ, ok := l.sourceTypes[a.Source]; ok {
		if cap, ok := l.typeCaps[typ]; ok && cap > 0 {
			return cap
		}
	}
	return l.defaultCap
}
