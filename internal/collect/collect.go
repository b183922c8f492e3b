// Package collect fetches raw entries from every configured source and
// normalizes them into canonical articles. Each source fetch is isolated: a
// failing feed is recorded and the run continues.
package collect

import (
	"log"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/cariboufeeds/curator/internal/config"
	"github.com/cariboufeeds/curator/internal/feed"
)

// Source is one configured feed.
type Source struct {
	URL      string
	Name     string
	HTMLURL  string
	Priority bool
}

// SourceFailure records a feed that could not be fetched.
type SourceFailure struct {
	Source string
	Err    error
}

// Result holds the results of a collection pass.
type Result struct {
	Sources   int
	Fetched   int
	Filtered  int
	Rejected  int
	PerSource map[string]int
	Failures  []SourceFailure
}

// Collector fetches and normalizes articles from all sources.
type Collector struct {
	sources         []Source
	blockedSources  []string
	blockedKeywords []string
	lookback        time.Duration
	parser          *gofeed.Parser
}

// New builds a Collector from configuration, resolving the OPML subscription
// list if one is set. Priority sources are ordered first so their articles
// win deduplication ties.
func New(cfg *config.Config) (*Collector, error) {
	var sources []Source
	for _, f := range cfg.Sources.Feeds {
		sources = append(sources, Source{
			URL:      f.URL,
			Name:     f.Name,
			Priority: f.Priority,
		})
	}
	if cfg.Sources.OPML != "" {
		opmlSources, err := ParseOPML(cfg.Sources.OPML)
		if err != nil {
			return nil, err
		}
		sources = append(sources, opmlSources...)
	}

	ordered := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Priority {
			ordered = append(ordered, s)
		}
	}
	for _, s := range sources {
		if !s.Priority {
			ordered = append(ordered, s)
		}
	}

	return &Collector{
		sources:         ordered,
		blockedSources:  lowercase(cfg.Filters.BlockedSources),
		blockedKeywords: lowercase(cfg.Filters.BlockedKeywords),
		lookback:        time.Duration(cfg.Windows.LookbackHours) * time.Hour,
		parser:          gofeed.NewParser(),
	}, nil
}

// Collect fetches every source and returns the normalized articles within
// the lookback window, priority sources first.
func (c *Collector) Collect(now time.Time) ([]feed.Article, *Result) {
	r := &Result{Sources: len(c.sources), PerSource: make(map[string]int)}
	cutoff := now.Add(-c.lookback)

	var all []feed.Article
	for _, src := range c.sources {
		articles, err := c.collectSource(src, cutoff, now, r)
		if err != nil {
			log.Printf("Source %s failed: %v", src.Name, err)
			r.Failures = append(r.Failures, SourceFailure{Source: src.Name, Err: err})
			continue
		}
		if len(articles) > 0 {
			log.Printf("Source %s: %d articles", src.Name, len(articles))
		}
		r.PerSource[src.Name] = len(articles)
		all = append(all, articles...)
	}

	r.Fetched = len(all)
	return all, r
}

func (c *Collector) collectSource(src Source, cutoff, now time.Time, r *Result) ([]feed.Article, error) {
	parsed, err := c.parser.ParseURL(src.URL)
	if err != nil {
		return nil, err
	}

	identity := feed.SourceIdentity{Name: src.Name, URL: src.HTMLURL, Priority: src.Priority}
	if identity.Name == "" {
		identity.Name = parsed.Title
	}

	var articles []feed.Article
	for _, item := range parsed.Items {
		a, err := feed.Normalize(item, identity, now)
		if err != nil {
			// Unidentifiable item: dropped, never hashed.
			r.Rejected++
			continue
		}
		if a.PublishedAt.Before(cutoff) {
			continue
		}
		if c.isBlocked(a) {
			r.Filtered++
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (c *Collector) isBlocked(a feed.Article) bool {
	source := strings.ToLower(a.Source)
	for _, blocked := range c.blockedSources {
		if strings.Contains(source, blocked) {
			return true
		}
	}

	text := strings.ToLower(a.Title + " " + a.Description)
	for _, kw := range c.blockedKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowercase(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.ToLower(s)
	}
	return out
}
