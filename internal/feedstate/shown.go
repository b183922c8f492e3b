package feedstate

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cariboufeeds/curator/internal/jsonfile"
)

// Registry remembers every article hash ever admitted to a feed. Its
// retention is much longer than the category retention, so an article that
// ages out of a feed stays blocked from re-admission until its record
// expires. That is what prevents content resurrection.
type Registry struct {
	path        string
	retention   time.Duration
	compactSize int
	records     map[string]time.Time
}

// OpenRegistry loads the shown registry at path. compactSize bounds the
// registry beyond the retention prune: past it, the oldest records are
// dropped first.
func OpenRegistry(path string, retention time.Duration, compactSize int) (*Registry, error) {
	r := &Registry{
		path:        path,
		retention:   retention,
		compactSize: compactSize,
		records:     make(map[string]time.Time),
	}
	if _, err := jsonfile.Load(path, &r.records); err != nil {
		// A corrupt registry is rebuilt rather than blocking the run.
		log.Printf("Shown registry unreadable, starting fresh: %v", err)
		r.records = make(map[string]time.Time)
	}
	return r, nil
}

// Seen reports whether a hash was admitted within the retention window.
func (r *Registry) Seen(hash string, now time.Time) bool {
	at, ok := r.records[hash]
	if !ok {
		return false
	}
	return now.Sub(at) < r.retention
}

// Record marks a hash as admitted at the given time.
func (r *Registry) Record(hash string, now time.Time) {
	r.records[hash] = now
}

// Save prunes expired records, compacts past the size threshold, and writes
// the registry atomically.
func (r *Registry) Save(now time.Time) error {
	cutoff := now.Add(-r.retention)
	for hash, at := range r.records {
		if !at.After(cutoff) {
			delete(r.records, hash)
		}
	}

	if r.compactSize > 0 && len(r.records) > r.compactSize {
		type rec struct {
			hash string
			at   time.Time
		}
		all := make([]rec, 0, len(r.records))
		for h, at := range r.records {
			all = append(all, rec{h, at})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
		drop := len(all) - r.compactSize
		for _, old := range all[:drop] {
			delete(r.records, old.hash)
		}
		log.Printf("Shown registry: compacted %d oldest records", drop)
	}

	if err := jsonfile.Save(r.path, r.records); err != nil {
		return fmt.Errorf("saving shown registry: %w", err)
	}
	return nil
}

// Len returns the number of records currently held.
func (r *Registry) Len() int { return len(r.records) }
