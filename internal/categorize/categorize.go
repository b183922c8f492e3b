// Package categorize assigns each accepted article to exactly one category
// by deterministic, declaration-ordered keyword rules.
package categorize

import (
	"strings"

	"github.com/cariboufeeds/curator/internal/config"
	"github.com/cariboufeeds/curator/internal/feed"
)

// Categorizer evaluates ordered keyword rules against article text.
type Categorizer struct {
	rules    []config.CategoryRule
	fallback string
	local    string
}

// New creates a Categorizer from the configured rule set.
func New(categories config.Categories) *Categorizer {
	return &Categorizer{
		rules:    categories.Rules,
		fallback: categories.Fallback,
		local:    categories.Local,
	}
}

// Categorize returns the category key for an article. Priority articles are
// unconditionally local, overriding keyword rules. Otherwise the first rule
// (in declared order, fallback excluded) with any keyword present in
// title+description+source wins; no match lands in the fallback category.
func (c *Categorizer) Categorize(a feed.Article) string {
	if a.IsPriority {
		return c.local
	}

	text := strings.ToLower(a.Title + " " + a.Description + " " + a.Source)
	for _, rule := range c.rules {
		if rule.Key == c.fallback {
			continue
		}
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return rule.Key
			}
		}
	}
	return c.fallback
}

// Keys returns every category key the categorizer can emit, rules first and
// fallback last, without duplicates.
func (c *Categorizer) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	add(c.local)
	for _, rule := range c.rules {
		if rule.Key != c.fallback {
			add(rule.Key)
		}
	}
	add(c.fallback)
	return keys
}
