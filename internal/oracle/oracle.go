// Package oracle talks to the external scoring service. A provider takes a
// batch of unscored articles and returns one integer relevance score per
// article, positionally aligned with the input, or fails the whole batch.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Candidate is the slice of an article the oracle sees.
type Candidate struct {
	Title       string
	Source      string
	Description string
}

// Provider is the interface for scoring providers.
type Provider interface {
	// ScoreBatch returns a same-length, same-order list of scores in
	// [0,100], or an error failing the whole batch.
	ScoreBatch(ctx context.Context, candidates []Candidate) ([]int, error)
	IsConfigured() bool
}

// maxDescription bounds how much description text goes into a prompt.
const maxDescription = 300

// buildPrompt renders a scoring request for a batch of candidates.
func buildPrompt(interests string, candidates []Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n\n")
		}
		desc := c.Description
		if len(desc) > maxDescription {
			// Back up to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := maxDescription
			for cut > 0 && !utf8.RuneStart(desc[cut]) {
				cut--
			}
			desc = desc[:cut] + "..."
		}
		fmt.Fprintf(&b, "Article %d:\nTitle: %s\nSource: %s\nDescription: %s", i, c.Title, c.Source, desc)
	}

	return fmt.Sprintf(`Score these articles for relevance to my interests on a scale of 0-100.

My interests:
%s

Articles to score:
%s

Return ONLY a comma-separated list of scores (one per article), like: 85,42,91,15,73,...
No explanations, just the numbers.`, interests, b.String())
}

// parseScores extracts exactly want comma-separated integers from a provider
// response, clamping each to [0,100].
func parseScores(text string, want int) ([]int, error) {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "0123456789"); i > 0 {
		text = text[i:]
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}

	parts := strings.Split(text, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d scores, got %d in %q", want, len(parts), text)
	}

	scores := make([]int, want)
	for i, p := range parts {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &n); err != nil {
			return nil, fmt.Errorf("parsing score %d from %q: %w", i, p, err)
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		scores[i] = n
	}
	return scores, nil
}
