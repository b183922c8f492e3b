package output

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cariboufeeds/curator/internal/feed"
)

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func TestWriteCategoryDocument(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "https://feeds.example.com", "Curator")

	articles := []feed.Article{
		{
			URLHash:     feed.HashLink("https://a.com/1"),
			Title:       "Datacenter Buildout Accelerates",
			Link:        "https://a.com/1",
			Description: "Summary text.",
			Source:      "Tech Wire",
			ImageURL:    "https://a.com/pic.jpg",
			PublishedAt: testNow.Add(-time.Hour),
			Score:       88,
		},
		{
			URLHash:     feed.HashLink("https://b.com/2"),
			Title:       "Second Story",
			Link:        "https://b.com/2",
			Source:      "Other Paper",
			PublishedAt: testNow.Add(-2 * time.Hour),
			Score:       61,
		},
	}

	if err := w.WriteCategory("ai-tech", "AI & Tech", articles); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "feed-ai-tech.json"))
	if err != nil {
		t.Fatal(err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if doc.Version != "https://jsonfeed.org/version/1.1" {
		t.Errorf("wrong version: %q", doc.Version)
	}
	if doc.Title != "AI & Tech" {
		t.Errorf("wrong title: %q", doc.Title)
	}
	if doc.FeedURL != "https://feeds.example.com/feed-ai-tech.json" {
		t.Errorf("wrong feed_url: %q", doc.FeedURL)
	}
	if len(doc.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(doc.Items))
	}

	first := doc.Items[0]
	if first.Title != "[Tech Wire] Datacenter Buildout Accelerates" {
		t.Errorf("item title missing source prefix: %q", first.Title)
	}
	if first.ID != "https://a.com/1" || first.URL != "https://a.com/1" {
		t.Errorf("item id/url wrong: %q / %q", first.ID, first.URL)
	}
	if first.Score != 88 {
		t.Errorf("score extension lost: %d", first.Score)
	}
	if first.Image != "https://a.com/pic.jpg" {
		t.Errorf("image lost: %q", first.Image)
	}
	if first.DatePublished != testNow.Add(-time.Hour).Format(time.RFC3339) {
		t.Errorf("wrong date_published: %q", first.DatePublished)
	}
}

func TestWriteCategoryEmptyFeedHasItemsArray(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "https://feeds.example.com", "Curator")

	if err := w.WriteCategory("news", "News", nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "feed-news.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Items == nil {
		t.Error("items must be an empty array, not null")
	}
}

func TestWriteOPMLSurvivesXMLParsing(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "https://feeds.example.com", "Curator")

	// Titles with XML metacharacters must come back intact.
	err := w.WriteOPML(map[string]string{
		"ai-tech": "AI & Tech",
		"scifi":   `Sci-Fi <"Worldbuilding">`,
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "curated-feeds.opml"))
	if err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Body struct {
			Outlines []struct {
				Text   string `xml:"text,attr"`
				Title  string `xml:"title,attr"`
				XMLURL string `xml:"xmlUrl,attr"`
			} `xml:"outline"`
		} `xml:"body"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("written OPML is not valid XML: %v", err)
	}
	if len(doc.Body.Outlines) != 2 {
		t.Fatalf("expected 2 outlines, got %d", len(doc.Body.Outlines))
	}
	if doc.Body.Outlines[0].Title != "AI & Tech" {
		t.Errorf("ampersand title mangled: %q", doc.Body.Outlines[0].Title)
	}
	if doc.Body.Outlines[1].Title != `Sci-Fi <"Worldbuilding">` {
		t.Errorf("quoted title mangled: %q", doc.Body.Outlines[1].Title)
	}
	if doc.Body.Outlines[0].XMLURL != "https://feeds.example.com/feed-ai-tech.json" {
		t.Errorf("wrong xmlUrl: %q", doc.Body.Outlines[0].XMLURL)
	}
}

func TestWriteOPMLListsCategoriesSorted(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "https://feeds.example.com", "Curator")

	err := w.WriteOPML(map[string]string{
		"news":    "News",
		"ai-tech": "AI & Tech",
		"climate": "Climate",
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "curated-feeds.opml"))
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)

	for _, url := range []string{
		"https://feeds.example.com/feed-ai-tech.json",
		"https://feeds.example.com/feed-climate.json",
		"https://feeds.example.com/feed-news.json",
	} {
		if !strings.Contains(body, url) {
			t.Errorf("OPML missing feed URL %q", url)
		}
	}

	ai := strings.Index(body, "feed-ai-tech")
	cl := strings.Index(body, "feed-climate")
	ne := strings.Index(body, "feed-news")
	if !(ai < cl && cl < ne) {
		t.Error("OPML outlines not sorted by category key")
	}
}
