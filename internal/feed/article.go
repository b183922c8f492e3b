// Package feed defines the canonical article record and the normalizer that
// produces it from raw feed entries.
package feed

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Article is the canonical unit flowing through the pipeline. URLHash is the
// content address: two articles with the same hash are the same article for
// all purposes, including cache lookups and shown-registry checks.
type Article struct {
	URLHash         string    `json:"url_hash"`
	Title           string    `json:"title"`
	NormalizedTitle string    `json:"normalized_title"`
	Link            string    `json:"link"`
	Description     string    `json:"description"`
	PublishedAt     time.Time `json:"published_at"`
	Source          string    `json:"source"`
	SourceURL       string    `json:"source_url"`
	ImageURL        string    `json:"image_url,omitempty"`
	Score           int       `json:"score"`
	Category        string    `json:"category,omitempty"`
	IsPriority      bool      `json:"is_priority"`
}

// HashLink returns the stable identifier for an article link.
func HashLink(link string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle lowercases and collapses whitespace for fuzzy comparison.
func NormalizeTitle(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	return strings.Join(fields, " ")
}
