// Package discover evaluates candidate feeds pulled from curated OPML lists.
// Each candidate's recent articles are sampled and scored with the same
// oracle the pipeline uses; feeds whose average clears the threshold are
// recommended. Evaluations are cached so re-runs within the cache window
// cost nothing.
package discover

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gilliek/go-opml/opml"
	"github.com/mmcdole/gofeed"

	"github.com/cariboufeeds/curator/internal/collect"
	"github.com/cariboufeeds/curator/internal/config"
	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/jsonfile"
	"github.com/cariboufeeds/curator/internal/oracle"
)

// maxSampleAge bounds how old a sampled article may be. A feed whose newest
// entries are older than this is effectively dormant.
const maxSampleAge = 30 * 24 * time.Hour

// Candidate is one feed under evaluation.
type Candidate struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	HTMLURL      string  `json:"html_url,omitempty"`
	List         string  `json:"list"`
	AverageScore float64 `json:"average_score"`
	Sampled      int     `json:"sampled_articles"`
	Err          string  `json:"error,omitempty"`
}

// Report is the persisted outcome of a discovery run.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Evaluated   int         `json:"candidates_evaluated"`
	MinScore    int         `json:"min_score"`
	Recommended []Candidate `json:"recommended"`
}

type cacheEntry struct {
	AverageScore float64   `json:"average_score"`
	Sampled      int       `json:"sampled_articles"`
	Err          string    `json:"error,omitempty"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// Discoverer fetches candidate feeds and scores samples of their content.
type Discoverer struct {
	sources    []config.DiscoverySource
	known      map[string]bool
	sampleSize int
	minScore   int
	cachePath  string
	reportPath string
	cacheTTL   time.Duration
	provider   oracle.Provider
	parser     *gofeed.Parser
	cache      map[string]cacheEntry
}

// New builds a Discoverer from configuration. Feeds already subscribed to,
// inline or via the subscription OPML, are never candidates.
func New(cfg *config.Config, provider oracle.Provider) (*Discoverer, error) {
	known := make(map[string]bool)
	for _, f := range cfg.Sources.Feeds {
		known[normalizeURL(f.URL)] = true
	}
	if cfg.Sources.OPML != "" {
		subscribed, err := collect.ParseOPML(cfg.Sources.OPML)
		if err != nil {
			return nil, err
		}
		for _, s := range subscribed {
			known[normalizeURL(s.URL)] = true
		}
	}

	dataDir := cfg.GetDataDir()
	d := &Discoverer{
		sources:    cfg.Discovery.Sources,
		known:      known,
		sampleSize: cfg.Discovery.SampleArticles,
		minScore:   cfg.Discovery.MinScore,
		cachePath:  filepath.Join(dataDir, "discovery_cache.json"),
		reportPath: filepath.Join(dataDir, "feed-discovery.json"),
		cacheTTL:   time.Duration(cfg.Discovery.CacheDays) * 24 * time.Hour,
		provider:   provider,
		parser:     gofeed.NewParser(),
		cache:      make(map[string]cacheEntry),
	}

	if _, err := jsonfile.Load(d.cachePath, &d.cache); err != nil {
		log.Printf("Discovery cache unreadable, starting fresh: %v", err)
		d.cache = make(map[string]cacheEntry)
	}
	return d, nil
}

// ReportPath returns where the recommendation report is written.
func (d *Discoverer) ReportPath() string { return d.reportPath }

// Run fetches every discovery list, evaluates candidates whose cached result
// has expired, and writes the recommendation report.
func (d *Discoverer) Run(ctx context.Context, now time.Time) (*Report, error) {
	candidates := d.fetchCandidates()

	fresh := 0
	for i := range candidates {
		c := &candidates[i]
		if entry, ok := d.cache[c.URL]; ok && now.Sub(entry.EvaluatedAt) < d.cacheTTL {
			c.AverageScore = entry.AverageScore
			c.Sampled = entry.Sampled
			c.Err = entry.Err
			continue
		}

		d.evaluate(ctx, c, now)
		fresh++
		d.cache[c.URL] = cacheEntry{
			AverageScore: c.AverageScore,
			Sampled:      c.Sampled,
			Err:          c.Err,
			EvaluatedAt:  now,
		}
	}
	log.Printf("Discovery: %d candidates (%d newly evaluated)", len(candidates), fresh)

	if err := jsonfile.Save(d.cachePath, d.cache); err != nil {
		return nil, fmt.Errorf("saving discovery cache: %w", err)
	}

	report := &Report{
		GeneratedAt: now,
		Evaluated:   len(candidates),
		MinScore:    d.minScore,
	}
	for _, c := range candidates {
		if c.Err == "" && c.Sampled > 0 && c.AverageScore >= float64(d.minScore) {
			report.Recommended = append(report.Recommended, c)
		}
	}
	sort.SliceStable(report.Recommended, func(i, j int) bool {
		return report.Recommended[i].AverageScore > report.Recommended[j].AverageScore
	})

	if err := jsonfile.Save(d.reportPath, report); err != nil {
		return nil, fmt.Errorf("saving discovery report: %w", err)
	}
	return report, nil
}

// fetchCandidates pulls every discovery list and returns the feeds not
// already subscribed. A failing list is logged and skipped.
func (d *Discoverer) fetchCandidates() []Candidate {
	var candidates []Candidate
	seen := make(map[string]bool)

	for _, src := range d.sources {
		doc, err := opml.NewOPMLFromURL(src.URL)
		if err != nil {
			log.Printf("Discovery list %s failed: %v", src.Name, err)
			continue
		}

		count := 0
		var walk func(outlines []opml.Outline)
		walk = func(outlines []opml.Outline) {
			for _, o := range outlines {
				if o.XMLURL != "" {
					url := normalizeURL(o.XMLURL)
					if !d.known[url] && !seen[url] {
						seen[url] = true
						name := o.Title
						if name == "" {
							name = o.Text
						}
						candidates = append(candidates, Candidate{
							Title:   name,
							URL:     strings.TrimSpace(o.XMLURL),
							HTMLURL: o.HTMLURL,
							List:    src.Name,
						})
						count++
					}
				}
				walk(o.Outlines)
			}
		}
		walk(doc.Body.Outlines)
		log.Printf("Discovery list %s: %d new candidates", src.Name, count)
	}
	return candidates
}

func (d *Discoverer) evaluate(ctx context.Context, c *Candidate, now time.Time) {
	sample := d.sample(c, now)
	c.Sampled = len(sample)
	if len(sample) == 0 {
		if c.Err == "" {
			c.Err = "no recent articles"
		}
		return
	}

	batch := make([]oracle.Candidate, len(sample))
	for i, a := range sample {
		batch[i] = oracle.Candidate{
			Title:       a.Title,
			Source:      a.Source,
			Description: a.Description,
		}
	}

	scores, err := d.provider.ScoreBatch(ctx, batch)
	if err != nil {
		c.Err = fmt.Sprintf("scoring: %v", err)
		return
	}

	total := 0
	for _, s := range scores {
		total += s
	}
	c.AverageScore = float64(total) / float64(len(scores))
}

func (d *Discoverer) sample(c *Candidate, now time.Time) []feed.Article {
	parsed, err := d.parser.ParseURL(c.URL)
	if err != nil {
		c.Err = err.Error()
		return nil
	}

	identity := feed.SourceIdentity{Name: c.Title, URL: c.HTMLURL}
	if identity.Name == "" {
		identity.Name = parsed.Title
	}

	cutoff := now.Add(-maxSampleAge)
	var articles []feed.Article
	for _, item := range parsed.Items {
		if len(articles) == d.sampleSize {
			break
		}
		a, err := feed.Normalize(item, identity, now)
		if err != nil {
			continue
		}
		if a.PublishedAt.Before(cutoff) {
			continue
		}
		articles = append(articles, a)
	}
	return articles
}

func normalizeURL(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}
