package runlog

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "curator.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndReadBack(t *testing.T) {
	db := openTestDB(t)

	in := Run{
		StartedAt:     testNow,
		Fetched:       120,
		AfterDedup:    95,
		NewArticles:   40,
		OracleScored:  30,
		CacheHits:     10,
		FailedSources: []string{"Broken Feed"},
		FailedBatches: 1,
		Admitted:      map[string]int{"ai-tech": 12, "news": 8},
	}

	id, err := db.InsertRun(in)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Error("expected nonzero row id")
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if !got.StartedAt.Equal(testNow) {
		t.Errorf("started_at: got %v, want %v", got.StartedAt, testNow)
	}
	if got.Fetched != 120 || got.AfterDedup != 95 || got.NewArticles != 40 {
		t.Errorf("counts did not round-trip: %+v", got)
	}
	if !reflect.DeepEqual(got.FailedSources, in.FailedSources) {
		t.Errorf("failed sources: got %v", got.FailedSources)
	}
	if !reflect.DeepEqual(got.Admitted, in.Admitted) {
		t.Errorf("admitted counts: got %v", got.Admitted)
	}
}

func TestRecentRunsNewestFirstAndLimited(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		_, err := db.InsertRun(Run{StartedAt: testNow.Add(time.Duration(i) * time.Hour), Fetched: i})
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.RecentRuns(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].Fetched != 4 || runs[2].Fetched != 2 {
		t.Errorf("wrong order: %d, %d, %d", runs[0].Fetched, runs[1].Fetched, runs[2].Fetched)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)

	empty, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalRuns != 0 || !empty.LastRun.IsZero() {
		t.Errorf("expected empty stats, got %+v", empty)
	}

	db.InsertRun(Run{StartedAt: testNow, Fetched: 100, OracleScored: 20})
	db.InsertRun(Run{StartedAt: testNow.Add(time.Hour), Fetched: 50, OracleScored: 5})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRuns != 2 {
		t.Errorf("total runs: got %d", stats.TotalRuns)
	}
	if stats.TotalFetched != 150 || stats.TotalScored != 25 {
		t.Errorf("sums wrong: fetched %d, scored %d", stats.TotalFetched, stats.TotalScored)
	}
	if !stats.LastRun.Equal(testNow.Add(time.Hour)) {
		t.Errorf("last run: got %v", stats.LastRun)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curator.db")

	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.InsertRun(Run{StartedAt: testNow, Fetched: 7})
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopening existing database: %v", err)
	}
	defer db2.Close()

	runs, err := db2.RecentRuns(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Fetched != 7 {
		t.Errorf("data lost across reopen: %+v", runs)
	}
}
