// Package opml imports subscription lists in OPML form.
package opml

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"

	"golang.org/x/net/html/charset"
)

// Document is the root of an OPML file.
type Document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title string `xml:"title,omitempty"`
}

// Body contains the top-level outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a folder or feed entry.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FolderPlan is a folder to create and the feeds that go into it.
type FolderPlan struct {
	Name  string
	Order int
	Feeds []FeedPlan
}

// FeedPlan is a feed to create.
type FeedPlan struct {
	Title   string
	XMLURL  string
	HTMLURL string
}

// Store creates folders and feeds.
type Store interface {
	CreateFolder(name string, order int) (int64, error)
	CreateFeed(title, xmlURL, htmlURL string, folderID int64) (int64, error)
}

// Result summarizes an import.
type Result struct {
	Folders int
	Feeds   int
	Skipped int
}

// Parse reads an OPML document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	return &doc, nil
}

// Plan maps the document onto folders and feeds. Top-level outlines are
// folders, ordered by position; their children with an xmlUrl are feeds.
// Deeper nesting and children without an xmlUrl are ignored.
func (d *Document) Plan() []FolderPlan {
	plans := make([]FolderPlan, 0, len(d.Body.Outlines))
	for i, folder := range d.Body.Outlines {
		p := FolderPlan{
			Name:  firstNonEmpty(folder.Title, folder.Text, "Uncategorized"),
			Order: i,
		}
		for _, child := range folder.Outlines {
			if child.XMLURL == "" {
				continue
			}
			p.Feeds = append(p.Feeds, FeedPlan{
				Title:   firstNonEmpty(child.Title, child.Text, child.XMLURL),
				XMLURL:  child.XMLURL,
				HTMLURL: child.HTMLURL,
			})
		}
		plans = append(plans, p)
	}
	return plans
}

// Import creates every planned folder, then its feeds. A folder or feed
// that fails to be created is logged and skipped; the rest still import.
func Import(ctx context.Context, doc *Document, store Store) (*Result, error) {
	result := &Result{}
	for _, p := range doc.Plan() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		folderID, err := store.CreateFolder(p.Name, p.Order)
		if err != nil {
			log.Printf("Failed to create folder %q: %v", p.Name, err)
			result.Skipped += len(p.Feeds)
			continue
		}
		result.Folders++

		for _, f := range p.Feeds {
			if _, err := store.CreateFeed(f.Title, f.XMLURL, f.HTMLURL, folderID); err != nil {
				log.Printf("Failed to create feed %s: %v", f.XMLURL, err)
				result.Skipped++
				continue
			}
			result.Feeds++
		}
	}
	log.Printf("OPML import complete: %d folders, %d feeds, %d skipped", result.Folders, result.Feeds, result.Skipped)
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
