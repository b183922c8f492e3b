package diversity

import (
	"fmt"
	"testing"

	"github.com/cariboufeeds/curator/internal/feed"
)

func article(link, source string, score int, priority bool) feed.Article {
	return feed.Article{
		URLHash:    feed.HashLink(link),
		Link:       link,
		Source:     source,
		Score:      score,
		IsPriority: priority,
	}
}

func TestDefaultCapKeepsHighestScored(t *testing.T) {
	l := New(5, 10, nil, nil)

	var in []feed.Article
	for i := 0; i < 10; i++ {
		in = append(in, article(fmt.Sprintf("https://a.com/%d", i), "One Source", 50+i, false))
	}

	out := l.Apply(in)

	if len(out) != 5 {
		t.Fatalf("expected 5 admitted, got %d", len(out))
	}
	for _, a := range out {
		if a.Score < 55 {
			t.Errorf("lower-scored article %d admitted over a higher one", a.Score)
		}
	}
}

func TestPriorityCapOverridesDefault(t *testing.T) {
	l := New(2, 4, nil, nil)

	var in []feed.Article
	for i := 0; i < 6; i++ {
		in = append(in, article(fmt.Sprintf("https://local.com/%d", i), "Local Paper", 100, true))
	}

	out := l.Apply(in)
	if len(out) != 4 {
		t.Errorf("expected priority cap of 4, got %d admitted", len(out))
	}
}

func TestTypeCapOverride(t *testing.T) {
	l := New(5,
		10,
		map[string]int{"aggregator": 2},
		map[string]string{"Big Aggregator": "aggregator"},
	)

	var in []feed.Article
	for i := 0; i < 4; i++ {
		in = append(in, article(fmt.Sprintf("https://agg.com/%d", i), "Big Aggregator", 60, false))
		in = append(in, article(fmt.Sprintf("https://other.com/%d", i), "Plain Blog", 60, false))
	}

	out := l.Apply(in)

	counts := map[string]int{}
	for _, a := range out {
		counts[a.Source]++
	}
	if counts["Big Aggregator"] != 2 {
		t.Errorf("expected 2 from typed source, got %d", counts["Big Aggregator"])
	}
	if counts["Plain Blog"] != 4 {
		t.Errorf("expected 4 from untyped source, got %d", counts["Plain Blog"])
	}
}

func TestPriorityOrderedBeforeScore(t *testing.T) {
	l := New(10, 10, nil, nil)

	in := []feed.Article{
		article("https://a.com/1", "A", 95, false),
		article("https://local.com/1", "Local", 100, true),
		article("https://b.com/1", "B", 40, false),
	}

	out := l.Apply(in)

	if len(out) != 3 {
		t.Fatalf("expected all 3 admitted, got %d", len(out))
	}
	if !out[0].IsPriority {
		t.Error("priority article not first")
	}
	if out[1].Score != 95 || out[2].Score != 40 {
		t.Errorf("non-priority articles not score-ordered: %d, %d", out[1].Score, out[2].Score)
	}
}

func TestStableTieBreak(t *testing.T) {
	l := New(10, 10, nil, nil)

	in := []feed.Article{
		article("https://a.com/1", "A", 70, false),
		article("https://b.com/1", "B", 70, false),
		article("https://c.com/1", "C", 70, false),
	}

	out := l.Apply(in)

	for i, a := range out {
		if a.Link != in[i].Link {
			t.Errorf("tie order changed at %d: %q", i, a.Link)
		}
	}
}
