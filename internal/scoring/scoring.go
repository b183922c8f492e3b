// Package scoring assigns relevance scores to a deduplicated batch, serving
// fresh cached scores and sending only the remainder to the oracle.
package scoring

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/oracle"
	"github.com/cariboufeeds/curator/internal/scorecache"
)

var errNoProvider = errors.New("no scoring provider configured")

// MaxScore is assigned to priority articles, which bypass the cache and the
// oracle entirely.
const MaxScore = 100

// Result summarizes a scoring pass for the run report.
type Result struct {
	Scored        int
	Priority      int
	CacheHits     int
	OracleScored  int
	FailedBatches int
}

// Scorer splits a batch into cached and unscored subsets and batches the
// unscored ones to the oracle.
type Scorer struct {
	cache         *scorecache.Cache
	provider      oracle.Provider
	batchSize     int
	fallbackScore int
	adjustments   map[string]int
}

// New creates a Scorer. adjustments maps a source name to its source-type
// score adjustment; provider may be nil, in which case every miss batch is
// treated as failed.
func New(cache *scorecache.Cache, provider oracle.Provider, batchSize, fallbackScore int, adjustments map[string]int) *Scorer {
	if batchSize < 1 {
		batchSize = 10
	}
	return &Scorer{
		cache:         cache,
		provider:      provider,
		batchSize:     batchSize,
		fallbackScore: fallbackScore,
		adjustments:   adjustments,
	}
}

// Score assigns a score to every article and returns them all. Order is not
// significant downstream; the diversity limiter re-sorts by score.
//
// A failed oracle batch gets the fallback score cached for every article in
// it. That is deliberate fail-open: a persistently failing oracle is not
// re-attempted until the cache entry goes stale, at the cost of a degraded
// score living for the freshness window.
func (s *Scorer) Score(ctx context.Context, articles []feed.Article, now time.Time) ([]feed.Article, Result) {
	r := Result{}

	var scored []feed.Article
	var misses []feed.Article

	for _, a := range articles {
		if a.IsPriority {
			a.Score = MaxScore
			scored = append(scored, a)
			r.Priority++
			continue
		}
		if cached, ok := s.cache.Lookup(a.URLHash, now); ok {
			a.Score = s.adjust(cached, a.Source)
			scored = append(scored, a)
			r.CacheHits++
			continue
		}
		misses = append(misses, a)
	}

	if len(misses) > 0 {
		log.Printf("Scoring: %d cache hits, %d articles need the oracle", r.CacheHits, len(misses))
	}

	for start := 0; start < len(misses); start += s.batchSize {
		end := start + s.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		scores, err := s.scoreBatch(ctx, batch)
		if err != nil {
			log.Printf("Oracle batch of %d failed, assigning fallback score %d: %v", len(batch), s.fallbackScore, err)
			r.FailedBatches++
			scores = make([]int, len(batch))
			for i := range scores {
				scores[i] = s.fallbackScore
			}
		} else {
			r.OracleScored += len(batch)
		}

		// Cache writes happen per batch, for real and fallback scores
		// alike, so a crash between batches loses at most one batch.
		for i, a := range batch {
			s.cache.Put(a.URLHash, a.Source, scores[i], now)
			a.Score = s.adjust(scores[i], a.Source)
			scored = append(scored, a)
		}
	}

	r.Scored = len(scored)
	return scored, r
}

func (s *Scorer) scoreBatch(ctx context.Context, batch []feed.Article) ([]int, error) {
	if s.provider == nil {
		return nil, errNoProvider
	}
	candidates := make([]oracle.Candidate, len(batch))
	for i, a := range batch {
		candidates[i] = oracle.Candidate{
			Title:       a.Title,
			Source:      a.Source,
			Description: a.Description,
		}
	}
	return s.provider.ScoreBatch(ctx, candidates)
}

func (s *Scorer) adjust(score int, source string) int {
	score += s.adjustments[source]
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
