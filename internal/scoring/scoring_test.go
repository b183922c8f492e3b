package scoring

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/oracle"
	"github.com/cariboufeeds/curator/internal/scorecache"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

// mockProvider implements oracle.Provider for testing.
type mockProvider struct {
	scores  []int
	err     error
	calls   int
	batches [][]oracle.Candidate
}

func (m *mockProvider) ScoreBatch(_ context.Context, candidates []oracle.Candidate) ([]int, error) {
	m.calls++
	m.batches = append(m.batches, candidates)
	if m.err != nil {
		return nil, m.err
	}
	return m.scores[:len(candidates)], nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func openTestCache(t *testing.T) *scorecache.Cache {
	t.Helper()
	c, err := scorecache.Open(filepath.Join(t.TempDir(), "cache.json"), 6*time.Hour, 12*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func article(link, source string, priority bool) feed.Article {
	return feed.Article{
		URLHash:    feed.HashLink(link),
		Title:      "Title for " + link,
		Link:       link,
		Source:     source,
		IsPriority: priority,
	}
}

func TestPriorityBypassesOracle(t *testing.T) {
	mock := &mockProvider{scores: []int{10}}
	scorer := New(openTestCache(t), mock, 10, 50, nil)

	scored, r := scorer.Score(context.Background(), []feed.Article{
		article("https://local.com/1", "Local Paper", true),
	}, testNow)

	if mock.calls != 0 {
		t.Errorf("priority article invoked the oracle %d times", mock.calls)
	}
	if scored[0].Score != MaxScore {
		t.Errorf("expected max score, got %d", scored[0].Score)
	}
	if r.Priority != 1 {
		t.Errorf("expected 1 priority, got %d", r.Priority)
	}
}

func TestCacheHitSkipsOracle(t *testing.T) {
	cache := openTestCache(t)
	a := article("https://a.com/1", "Source", false)
	cache.Put(a.URLHash, a.Source, 77, testNow.Add(-time.Hour))

	mock := &mockProvider{scores: []int{10}}
	scorer := New(cache, mock, 10, 50, nil)

	scored, r := scorer.Score(context.Background(), []feed.Article{a}, testNow)

	if mock.calls != 0 {
		t.Errorf("cache hit still invoked the oracle %d times", mock.calls)
	}
	if scored[0].Score != 77 {
		t.Errorf("expected cached score 77, got %d", scored[0].Score)
	}
	if r.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", r.CacheHits)
	}
}

func TestStaleEntryTriggersRescoring(t *testing.T) {
	cache := openTestCache(t)
	a := article("https://a.com/1", "Source", false)
	cache.Put(a.URLHash, a.Source, 77, testNow.Add(-7*time.Hour))

	mock := &mockProvider{scores: []int{91}}
	scorer := New(cache, mock, 10, 50, nil)

	scored, _ := scorer.Score(context.Background(), []feed.Article{a}, testNow)

	if mock.calls != 1 {
		t.Fatalf("expected 1 oracle call for stale entry, got %d", mock.calls)
	}
	if scored[0].Score != 91 {
		t.Errorf("expected fresh score 91, got %d", scored[0].Score)
	}
	if cached, ok := cache.Lookup(a.URLHash, testNow); !ok || cached != 91 {
		t.Errorf("cache not refreshed: %d, %v", cached, ok)
	}
}

func TestBatchingRespectsSize(t *testing.T) {
	mock := &mockProvider{scores: []int{60, 61, 62}}
	scorer := New(openTestCache(t), mock, 3, 50, nil)

	var batch []feed.Article
	for i := 0; i < 7; i++ {
		batch = append(batch, article(fmt.Sprintf("https://a.com/%d", i), "S", false))
	}

	_, r := scorer.Score(context.Background(), batch, testNow)

	if mock.calls != 3 {
		t.Errorf("expected 3 oracle calls for 7 articles at batch size 3, got %d", mock.calls)
	}
	if got := len(mock.batches[2]); got != 1 {
		t.Errorf("expected final batch of 1, got %d", got)
	}
	if r.OracleScored != 7 {
		t.Errorf("expected 7 oracle-scored, got %d", r.OracleScored)
	}
}

func TestFailedBatchGetsFallbackScoreAndCacheEntry(t *testing.T) {
	cache := openTestCache(t)
	mock := &mockProvider{err: errors.New("oracle down")}
	scorer := New(cache, mock, 10, 50, nil)

	a := article("https://a.com/1", "Source", false)
	scored, r := scorer.Score(context.Background(), []feed.Article{a}, testNow)

	if scored[0].Score != 50 {
		t.Errorf("expected fallback score 50, got %d", scored[0].Score)
	}
	if r.FailedBatches != 1 {
		t.Errorf("expected 1 failed batch, got %d", r.FailedBatches)
	}

	// Fail-open: the fallback score is cached so the failing article is
	// not re-attempted within the freshness window.
	if cached, ok := cache.Lookup(a.URLHash, testNow); !ok || cached != 50 {
		t.Errorf("fallback score not cached: %d, %v", cached, ok)
	}

	mock2 := &mockProvider{scores: []int{99}}
	scorer2 := New(cache, mock2, 10, 50, nil)
	scorer2.Score(context.Background(), []feed.Article{a}, testNow.Add(time.Hour))
	if mock2.calls != 0 {
		t.Errorf("cached fallback did not prevent re-scoring: %d calls", mock2.calls)
	}
}

func TestNilProviderFailsOpen(t *testing.T) {
	scorer := New(openTestCache(t), nil, 10, 50, nil)

	scored, r := scorer.Score(context.Background(), []feed.Article{
		article("https://a.com/1", "Source", false),
	}, testNow)

	if scored[0].Score != 50 {
		t.Errorf("expected fallback score with nil provider, got %d", scored[0].Score)
	}
	if r.FailedBatches != 1 {
		t.Errorf("expected 1 failed batch, got %d", r.FailedBatches)
	}
}

func TestSourceTypeAdjustmentIsClamped(t *testing.T) {
	mock := &mockProvider{scores: []int{98, 3}}
	adjustments := map[string]int{"Boosted": 10, "Dampened": -10}
	scorer := New(openTestCache(t), mock, 10, 50, adjustments)

	scored, _ := scorer.Score(context.Background(), []feed.Article{
		article("https://a.com/1", "Boosted", false),
		article("https://b.com/2", "Dampened", false),
	}, testNow)

	if scored[0].Score != 100 {
		t.Errorf("expected boost clamped to 100, got %d", scored[0].Score)
	}
	if scored[1].Score != 0 {
		t.Errorf("expected dampening clamped to 0, got %d", scored[1].Score)
	}
}
