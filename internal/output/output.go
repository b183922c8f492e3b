// Package output serializes category feeds as JSON Feed 1.1 documents plus a
// subscription OPML pointing at all of them.
package output

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cariboufeeds/curator/internal/feed"
	"github.com/cariboufeeds/curator/internal/jsonfile"
)

// Document is a JSON Feed 1.1 top-level object.
type Document struct {
	Version     string   `json:"version"`
	Title       string   `json:"title"`
	HomePageURL string   `json:"home_page_url,omitempty"`
	FeedURL     string   `json:"feed_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Authors     []Author `json:"authors,omitempty"`
	Language    string   `json:"language,omitempty"`
	Items       []Item   `json:"items"`
}

// Author names the feed or item author.
type Author struct {
	Name string `json:"name"`
}

// Item is one JSON Feed entry. Score rides along as a _score extension.
type Item struct {
	ID            string   `json:"id"`
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	ContentHTML   string   `json:"content_html,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Image         string   `json:"image,omitempty"`
	DatePublished string   `json:"date_published"`
	Authors       []Author `json:"authors,omitempty"`
	Score         int      `json:"_score"`
}

// Writer emits the external feed documents.
type Writer struct {
	dir     string
	siteURL string
	author  string
}

// NewWriter creates a Writer emitting files into dir.
func NewWriter(dir, siteURL, author string) *Writer {
	return &Writer{dir: dir, siteURL: siteURL, author: author}
}

// WriteCategory writes feed-<category>.json for a category's articles.
func (w *Writer) WriteCategory(category, title string, articles []feed.Article) error {
	filename := fmt.Sprintf("feed-%s.json", category)
	doc := Document{
		Version:     "https://jsonfeed.org/version/1.1",
		Title:       title,
		HomePageURL: w.siteURL,
		FeedURL:     w.siteURL + "/" + filename,
		Description: fmt.Sprintf("Curated %s articles", title),
		Authors:     []Author{{Name: w.author}},
		Language:    "en-US",
		Items:       make([]Item, 0, len(articles)),
	}

	for _, a := range articles {
		doc.Items = append(doc.Items, Item{
			ID:            a.Link,
			URL:           a.Link,
			Title:         fmt.Sprintf("[%s] %s", a.Source, a.Title),
			ContentHTML:   "<p>" + a.Description + "</p>",
			Summary:       a.Description,
			Image:         a.ImageURL,
			DatePublished: a.PublishedAt.Format(time.RFC3339),
			Authors:       []Author{{Name: a.Source}},
			Score:         a.Score,
		})
	}

	return jsonfile.Save(filepath.Join(w.dir, filename), &doc)
}

type opmlDocument struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Type    string `xml:"type,attr"`
	Text    string `xml:"text,attr"`
	Title   string `xml:"title,attr"`
	XMLURL  string `xml:"xmlUrl,attr"`
	HTMLURL string `xml:"htmlUrl,attr"`
}

// WriteOPML writes a subscription OPML listing every category feed.
func (w *Writer) WriteOPML(categories map[string]string, now time.Time) error {
	doc := opmlDocument{
		Version: "1.0",
		Head: opmlHead{
			Title:       "Curated Feeds",
			DateCreated: now.UTC().Format(time.RFC1123),
		},
	}

	keys := make([]string, 0, len(categories))
	for key := range categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		title := categories[key]
		doc.Body.Outlines = append(doc.Body.Outlines, opmlOutline{
			Type:    "rss",
			Text:    title,
			Title:   title,
			XMLURL:  fmt.Sprintf("%s/feed-%s.json", w.siteURL, key),
			HTMLURL: w.siteURL,
		})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding OPML: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')

	return jsonfile.SaveBytes(filepath.Join(w.dir, "curated-feeds.opml"), data)
}
