// Package feedstate persists the per-category result collections across runs
// and the registry of everything ever admitted to one.
package feedstate

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/cariboufeeds/curator/internal/diversity"
	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/jsonfile"
)

// State is the persisted form of one category feed.
type State struct {
	Category  string         `json:"category"`
	UpdatedAt time.Time      `json:"updated_at"`
	Articles  []feed.Article `json:"articles"`
}

// Store loads, merges, ages and persists category feed states.
type Store struct {
	dir       string
	retention time.Duration
	maxSize   int
}

// NewStore creates a Store writing state files under dir.
func NewStore(dir string, retention time.Duration, maxSize int) *Store {
	return &Store{dir: dir, retention: retention, maxSize: maxSize}
}

func (s *Store) path(category string) string {
	return filepath.Join(s.dir, fmt.Sprintf("state-%s.json", category))
}

// Load returns the persisted articles for a category with entries older than
// the category retention aged out. A missing state file is an empty feed.
func (s *Store) Load(category string, now time.Time) ([]feed.Article, error) {
	var state State
	ok, err := jsonfile.Load(s.path(category), &state)
	if err != nil {
		// An unreadable state file is rebuilt rather than wedging the
		// category on every subsequent run.
		log.Printf("Feed %s state unreadable, starting fresh: %v", category, err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	cutoff := now.Add(-s.retention)
	var kept []feed.Article
	for _, a := range state.Articles {
		if a.PublishedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if aged := len(state.Articles) - len(kept); aged > 0 {
		log.Printf("Feed %s: aged out %d entries", category, aged)
	}
	return kept, nil
}

// Merge combines persisted entries with newly accepted articles. On a hash
// collision the persisted entry wins, preserving its score history. The
// diversity limiter is re-applied to the merged set and the result is
// truncated to the max feed size keeping the highest scores.
func (s *Store) Merge(existing, incoming []feed.Article, limiter *diversity.Limiter) []feed.Article {
	seen := make(map[string]bool, len(existing))
	merged := make([]feed.Article, 0, len(existing)+len(incoming))
	for _, a := range existing {
		if seen[a.URLHash] {
			continue
		}
		seen[a.URLHash] = true
		merged = append(merged, a)
	}
	for _, a := range incoming {
		if seen[a.URLHash] {
			continue
		}
		seen[a.URLHash] = true
		merged = append(merged, a)
	}

	merged = limiter.Apply(merged)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > s.maxSize {
		merged = merged[:s.maxSize]
	}
	return merged
}

// Save atomically persists a category feed state.
func (s *Store) Save(category string, articles []feed.Article, now time.Time) error {
	state := State{
		Category:  category,
		UpdatedAt: now,
		Articles:  articles,
	}
	if err := jsonfile.Save(s.path(category), &state); err != nil {
		return fmt.Errorf("saving %s feed state: %w", category, err)
	}
	return nil
}
