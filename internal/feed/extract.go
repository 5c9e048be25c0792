package feed

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// MaxItems is how many items are taken from a feed per refresh, in
// document order.
const MaxItems = 50

var (
	// ErrParse means the body was not parseable as XML.
	ErrParse = errors.New("feed parse error")
	// ErrFormat means the body parsed but is neither RSS nor Atom.
	ErrFormat = errors.New("unrecognized feed format")
	// ErrExtractionEmpty means the feed parsed but carried no items.
	ErrExtractionEmpty = errors.New("feed has no items")
)

// Format names the syndication dialect of a document.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
)

// Document is a parsed feed: the channel node plus its item nodes.
type Document struct {
	Format  Format
	Channel *Node
	Items   []*Node
}

// Item is the normalized view of one feed item.
type Item struct {
	Title       string
	Link        string
	GUID        string
	PublishedAt time.Time
	RawContent  string
	ImageURL    string
	Author      string
}

// Parse parses an RSS 2.0 or Atom document. The channel is rss/channel when
// present, otherwise the Atom feed element.
func Parse(data []byte) (*Document, error) {
	if gofeed.DetectFeedType(bytes.NewReader(data)) == gofeed.FeedTypeJSON {
		return nil, fmt.Errorf("%w: JSON feeds are not supported", ErrFormat)
	}

	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	if ch := root.Child("rss").Child("channel"); ch != nil {
		doc.Format = FormatRSS
		doc.Channel = ch
	} else if f := root.Child("feed"); f != nil {
		doc.Format = FormatAtom
		doc.Channel = f
	} else {
		return nil, fmt.Errorf("%w: no rss channel or atom feed element", ErrFormat)
	}

	items := doc.Channel.ChildrenNamed("item")
	if len(items) == 0 {
		items = doc.Channel.ChildrenNamed("entry")
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	doc.Items = items
	return doc, nil
}

// Entries extracts every (capped) item. now stands in for missing or
// unparseable publication dates.
func (d *Document) Entries(now time.Time) []Item {
	out := make([]Item, 0, len(d.Items))
	for _, n := range d.Items {
		out = append(out, ExtractItem(n, now))
	}
	return out
}

// ExtractItem applies the per-field fallback chains to one item node.
func ExtractItem(n *Node, now time.Time) Item {
	it := Item{
		Title:      firstOf(n, textContent("title")),
		Link:       itemLink(n),
		RawContent: firstOf(n, scalar("content:encoded"), scalar("description"), scalar("summary"), textContent("content")),
		ImageURL:   firstOf(n, attr("media:content", "url"), attr("media:thumbnail", "url"), attr("enclosure", "url")),
		Author:     firstOf(n, person("author"), person("dc:creator")),
	}
	if it.Title == "" {
		it.Title = "Untitled"
	}

	it.GUID = firstOf(n, textContent("guid"), textContent("id"))
	if it.GUID == "" {
		it.GUID = it.Link
	}
	if it.GUID == "" {
		it.GUID = it.Title
	}

	it.PublishedAt = now
	if raw := firstOf(n, scalar("pubDate"), scalar("published"), scalar("updated"), scalar("dc:date")); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			it.PublishedAt = t
		}
	}
	return it
}

// accessor reads one candidate value from an item; "" means absent.
type accessor func(n *Node) string

func firstOf(n *Node, chain ...accessor) string {
	for _, get := range chain {
		if v := get(n); v != "" {
			return v
		}
	}
	return ""
}

// scalar reads a child's text only when it holds no child elements.
func scalar(name string) accessor {
	return func(n *Node) string {
		c := n.Child(name)
		if c == nil || c.Structured() {
			return ""
		}
		return c.Text
	}
}

// textContent reads a child's own text even when it also has attributes
// or child elements.
func textContent(name string) accessor {
	return func(n *Node) string {
		if c := n.Child(name); c != nil {
			return c.Text
		}
		return ""
	}
}

func attr(name, key string) accessor {
	return func(n *Node) string {
		return n.Child(name).Attr(key)
	}
}

// person reads a plain-text author or the name of a structured one.
func person(name string) accessor {
	return func(n *Node) string {
		c := n.Child(name)
		if c == nil {
			return ""
		}
		if c.Structured() {
			if nm := c.Child("name"); nm != nil {
				return nm.Text
			}
			return ""
		}
		return c.Text
	}
}

// itemLink prefers an Atom-style href, picking the alternate link when
// several are present, and falls back to a plain link or url element.
func itemLink(n *Node) string {
	links := n.ChildrenNamed("link")
	var firstHref string
	for _, l := range links {
		href := l.Attr("href")
		if href == "" {
			continue
		}
		if rel := l.Attr("rel"); rel == "" || rel == "alternate" {
			return href
		}
		if firstHref == "" {
			firstHref = href
		}
	}
	if firstHref != "" {
		return firstHref
	}
	return firstOf(n, scalar("link"), scalar("url"))
}
