package collect

import (
	"fmt"
	"log"

	"github.com/gilliek/go-opml/opml"
)

// ParseOPML extracts RSS sources from an OPML subscription file. Outlines
// are walked recursively so grouped subscriptions work too.
func ParseOPML(path string) ([]Source, error) {
	doc, err := opml.NewOPMLFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing OPML %s: %w", path, err)
	}

	var sources []Source
	var walk func(outlines []opml.Outline)
	walk = func(outlines []opml.Outline) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				name := o.Title
				if name == "" {
					name = o.Text
				}
				sources = append(sources, Source{
					URL:     o.XMLURL,
					Name:    name,
					HTMLURL: o.HTMLURL,
				})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	log.Printf("Found %d feeds in %s", len(sources), path)
	return sources, nil
}
