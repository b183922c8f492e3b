// Package scorecache is a content-addressed store of prior relevance scores.
// A cached score is served while it is fresh; after the freshness window it
// is logically absent and the article must be re-scored, though the record
// stays on disk until the next prune pass.
package scorecache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cariboufeeds/curator/internal/jsonfile"
)

// Entry records one scored article.
type Entry struct {
	Score    int       `json:"score"`
	Source   string    `json:"source,omitempty"`
	ScoredAt time.Time `json:"scored_at"`
}

// Cache is loaded once at the start of a run, mutated in memory, and written
// back once at the end.
type Cache struct {
	path      string
	freshness time.Duration
	retention time.Duration
	entries   map[string]Entry
	discarded int
}

// Open loads the cache file at path. Malformed entries are discarded rather
// than failing the load; a missing file starts an empty cache.
func Open(path string, freshness, retention time.Duration) (*Cache, error) {
	c := &Cache{
		path:      path,
		freshness: freshness,
		retention: retention,
		entries:   make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading score cache: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("Score cache %s is unreadable, starting fresh: %v", path, err)
		return c, nil
	}

	for hash, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil || e.ScoredAt.IsZero() {
			c.discarded++
			continue
		}
		c.entries[hash] = e
	}
	if c.discarded > 0 {
		log.Printf("Score cache: discarded %d malformed entries", c.discarded)
	}
	return c, nil
}

// Lookup returns the cached score for a hash if a fresh entry exists.
func (c *Cache) Lookup(hash string, now time.Time) (int, bool) {
	e, ok := c.entries[hash]
	if !ok {
		return 0, false
	}
	if now.Sub(e.ScoredAt) >= c.freshness {
		return 0, false
	}
	return e.Score, true
}

// Put records a score for a hash at the given time.
func (c *Cache) Put(hash, source string, score int, now time.Time) {
	c.entries[hash] = Entry{Score: score, Source: source, ScoredAt: now}
}

// Save prunes entries older than the retention window and atomically writes
// the cache back to disk. Retention is longer than freshness so stale-but-
// recent entries survive as history without the file growing unbounded.
func (c *Cache) Save(now time.Time) error {
	cutoff := now.Add(-c.retention)
	pruned := 0
	for hash, e := range c.entries {
		if e.ScoredAt.Before(cutoff) {
			delete(c.entries, hash)
			pruned++
		}
	}
	if pruned > 0 {
		log.Printf("Score cache: pruned %d expired entries", pruned)
	}
	return jsonfile.Save(c.path, c.entries)
}

// Len returns the number of loaded entries.
func (c *Cache) Len() int { return len(c.entries) }

// Discarded returns how many malformed entries the load dropped.
func (c *Cache) Discarded() int { return c.discarded }
