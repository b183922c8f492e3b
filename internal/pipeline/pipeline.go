// Package pipeline orchestrates one curation run: collect, dedup, shown
// check, score, quality filter, categorize, merge and persist.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/cariboufeeds/curator/internal/categorize"
	"github.com/cariboufeeds/curator/internal/collect"
	"github.com/cariboufeeds/curator/internal/config"
	"github.com/cariboufeeds/curator/internal/dedup"
	"github.com/cariboufeeds/curator/internal/diversity"
	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/feedstate"
	"github.com/cariboufeeds/curator/internal/oracle"
	"github.com/cariboufeeds/curator/internal/output"
	"github.com/cariboufeeds/curator/internal/runlog"
	"github.com/cariboufeeds/curator/internal/scorecache"
	"github.com/cariboufeeds/curator/internal/scoring"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps    []StepResult
	Admitted map[string]int
}

// Failed reports whether any step failed hard.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs the curation stages against shared on-disk state. State
// files are loaded once at the start of a run, mutated in memory, and
// written back once at the end. Overlapping runs are not coordinated here;
// schedulers must serialize invocations.
type Pipeline struct {
	cfg      *config.Config
	provider oracle.Provider
	history  *runlog.DB
}

// New creates a pipeline. history may be nil to skip run recording.
func New(cfg *config.Config, provider oracle.Provider, history *runlog.DB) *Pipeline {
	return &Pipeline{cfg: cfg, provider: provider, history: history}
}

// Run executes the full pipeline once.
func (p *Pipeline) Run(ctx context.Context, now time.Time) *Result {
	r := &Result{Admitted: make(map[string]int)}
	dataDir := p.cfg.GetDataDir()

	cache, err := scorecache.Open(
		filepath.Join(dataDir, "scored_articles_cache.json"),
		time.Duration(p.cfg.Windows.ScoreFreshnessHours)*time.Hour,
		time.Duration(p.cfg.Windows.ScorePruneHours)*time.Hour,
	)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load state", Err: err})
		return r
	}

	registry, err := feedstate.OpenRegistry(
		filepath.Join(dataDir, "shown_articles.json"),
		time.Duration(p.cfg.Windows.ShownRetentionDays)*24*time.Hour,
		p.cfg.Windows.ShownCompactSize,
	)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load state", Err: err})
		return r
	}

	// Step 1: Collect
	log.Println("Step 1/6: Collecting articles...")
	collector, err := collect.New(p.cfg)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	articles, collectResult := collector.Collect(now)
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Fetched %d articles from %d sources (%d filtered, %d unidentifiable, %d sources failed)",
			collectResult.Fetched, collectResult.Sources, collectResult.Filtered,
			collectResult.Rejected, len(collectResult.Failures)),
	})

	// Step 2: Dedup
	log.Println("Step 2/6: Deduplicating...")
	deduper := dedup.New(p.cfg.Limits.DedupThreshold)
	unique, dedupResult := deduper.Deduplicate(articles)
	r.Steps = append(r.Steps, StepResult{
		Name: "Dedup",
		Summary: fmt.Sprintf("%d -> %d articles (%d exact, %d near duplicates)",
			dedupResult.Input, dedupResult.Retained, dedupResult.ExactDupes, dedupResult.NearDupes),
	})

	// Step 3: Shown check
	log.Println("Step 3/6: Filtering previously shown articles...")
	fresh := unique[:0:0]
	for _, a := range unique {
		if !registry.Seen(a.URLHash, now) {
			fresh = append(fresh, a)
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Shown check",
		Summary: fmt.Sprintf("%d -> %d new articles", len(unique), len(fresh)),
	})

	// Step 4: Score
	log.Println("Step 4/6: Scoring...")
	scorer := scoring.New(cache, p.provider, p.cfg.Limits.OracleBatchSize,
		p.cfg.Limits.FallbackScore, p.scoreAdjustments())
	scored, scoreResult := scorer.Score(ctx, fresh, now)
	r.Steps = append(r.Steps, StepResult{
		Name: "Score",
		Summary: fmt.Sprintf("%d scored (%d priority, %d cache hits, %d via oracle, %d failed batches)",
			scoreResult.Scored, scoreResult.Priority, scoreResult.CacheHits,
			scoreResult.OracleScored, scoreResult.FailedBatches),
	})

	// Step 5: Quality filter + categorize
	log.Println("Step 5/6: Categorizing...")
	categorizer := categorize.New(p.cfg.Categories)
	byCategory := make(map[string][]feed.Article)
	passed := 0
	for _, a := range scored {
		if !a.IsPriority && a.Score < p.cfg.Limits.MinScore {
			continue
		}
		passed++
		a.Category = categorizer.Categorize(a)
		byCategory[a.Category] = append(byCategory[a.Category], a)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Categorize",
		Summary: fmt.Sprintf("%d passed the quality filter across %d categories", passed, len(byCategory)),
	})

	// Step 6: Merge, persist, emit
	log.Println("Step 6/6: Merging feed states...")
	step := p.mergeAndPersist(byCategory, categorizer, registry, now, r)
	r.Steps = append(r.Steps, step)

	if err := cache.Save(now); err != nil {
		log.Printf("Saving score cache failed: %v", err)
	}
	if err := registry.Save(now); err != nil {
		log.Printf("Saving shown registry failed: %v", err)
	}

	p.recordRun(now, collectResult, dedupResult, len(fresh), scoreResult, r)

	return r
}

func (p *Pipeline) mergeAndPersist(byCategory map[string][]feed.Article, categorizer *categorize.Categorizer,
	registry *feedstate.Registry, now time.Time, r *Result) StepResult {

	dataDir := p.cfg.GetDataDir()
	store := feedstate.NewStore(dataDir,
		time.Duration(p.cfg.Windows.CategoryRetentionHours)*time.Hour,
		p.cfg.Limits.MaxFeedSize)
	limiter := diversity.New(p.cfg.Limits.MaxPerSource, p.cfg.Limits.MaxPerPrioritySource,
		p.typeCaps(), p.cfg.SourceTypes.Map)
	writer := output.NewWriter(dataDir, p.cfg.Output.SiteURL, p.cfg.Output.Author)

	titles := make(map[string]string)
	for _, rule := range p.cfg.Categories.Rules {
		titles[rule.Key] = rule.Name
	}
	titleFor := func(category string) string {
		if t := titles[category]; t != "" {
			return t
		}
		return category
	}

	var failures int
	for _, category := range categorizer.Keys() {
		existing, err := store.Load(category, now)
		if err != nil {
			log.Printf("Feed %s: %v", category, err)
			failures++
			continue
		}

		merged := store.Merge(existing, byCategory[category], limiter)

		if err := store.Save(category, merged, now); err != nil {
			log.Printf("Feed %s: %v", category, err)
			failures++
			continue
		}

		if err := writer.WriteCategory(category, titleFor(category), merged); err != nil {
			log.Printf("Feed %s: %v", category, err)
			failures++
			continue
		}

		// Only now-admitted hashes go into the shown registry, so an
		// article dropped by the limiter can still compete next run.
		wasAdmitted := make(map[string]bool, len(existing))
		for _, a := range existing {
			wasAdmitted[a.URLHash] = true
		}
		newlyAdmitted := 0
		for _, a := range merged {
			if !wasAdmitted[a.URLHash] {
				registry.Record(a.URLHash, now)
				newlyAdmitted++
			}
		}
		r.Admitted[category] = newlyAdmitted
		log.Printf("Feed %s: %d entries (%d new)", category, len(merged), newlyAdmitted)
	}

	opmlTitles := make(map[string]string)
	for _, category := range categorizer.Keys() {
		opmlTitles[category] = titleFor(category)
	}
	if err := writer.WriteOPML(opmlTitles, now); err != nil {
		log.Printf("Writing OPML failed: %v", err)
		failures++
	}

	total := 0
	for _, n := range r.Admitted {
		total += n
	}
	return StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("Admitted %d new articles across %d feeds (%d write failures)", total, len(categorizer.Keys()), failures),
	}
}

func (p *Pipeline) scoreAdjustments() map[string]int {
	adj := make(map[string]int)
	for source, typ := range p.cfg.SourceTypes.Map {
		if st, ok := p.cfg.SourceTypes.Types[typ]; ok {
			adj[source] = st.ScoreAdjustment
		}
	}
	return adj
}

func (p *Pipeline) typeCaps() map[string]int {
	caps := make(map[string]int)
	for name, st := range p.cfg.SourceTypes.Types {
		if st.MaxPerSource > 0 {
			caps[name] = st.MaxPerSource
		}
	}
	return caps
}

func (p *Pipeline) recordRun(now time.Time, collectResult *collect.Result, dedupResult dedup.Result,
	newArticles int, scoreResult scoring.Result, r *Result) {

	if p.history == nil {
		return
	}

	var failedSources []string
	for _, f := range collectResult.Failures {
		failedSources = append(failedSources, f.Source)
	}

	_, err := p.history.InsertRun(runlog.Run{
		StartedAt:     now,
		Fetched:       collectResult.Fetched,
		AfterDedup:    dedupResult.Retained,
		NewArticles:   newArticles,
		OracleScored:  scoreResult.OracleScored,
		CacheHits:     scoreResult.CacheHits,
		FailedSources: failedSources,
		FailedBatches: scoreResult.FailedBatches,
		Admitted:      r.Admitted,
	})
	if err != nil {
		log.Printf("Recording run failed: %v", err)
	}
}
