package feed

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ErrUnidentifiableArticle marks an item with no usable link. Such items are
// dropped by the caller: an empty link must never be hashed, since every
// empty-hash article would collide into one.
var ErrUnidentifiableArticle = errors.New("unidentifiable article: no usable link")

// SourceIdentity names the feed an item came from.
type SourceIdentity struct {
	Name     string
	URL      string
	Priority bool
}

// Normalize turns a raw feed item into a canonical Article.
//
// Timestamp resolution: published, then updated, then now. Image resolution:
// enclosure with an image content type, then the item's structured image,
// then the first inline <img> in the description markup.
func Normalize(item *gofeed.Item, source SourceIdentity, now time.Time) (Article, error) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return Article{}, ErrUnidentifiableArticle
	}

	title := strings.TrimSpace(item.Title)

	description := item.Description
	if description == "" {
		description = item.Content
	}

	return Article{
		URLHash:         HashLink(link),
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		Link:            link,
		Description:     StripHTML(description),
		PublishedAt:     resolveTimestamp(item, now),
		Source:          source.Name,
		SourceURL:       source.URL,
		ImageURL:        resolveImage(item, description),
		IsPriority:      source.Priority,
	}, nil
}

func resolveTimestamp(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

func resolveImage(item *gofeed.Item, descriptionHTML string) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	return inlineImage(descriptionHTML)
}

// inlineImage pulls the first <img src> out of description markup.
func inlineImage(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// StripHTML reduces description markup to plain text with collapsed
// whitespace.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
