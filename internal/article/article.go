// Package article extracts the readable body of a web page.
package article

import (
	"bytes"
	"context"
	"html"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/TobiSchelling/benreader/internal/fetch"
)

// Article is the reader-view rendition of a page.
type Article struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Excerpt  *string `json:"excerpt,omitempty"`
	Byline   *string `json:"byline,omitempty"`
	SiteName *string `json:"siteName,omitempty"`
	Length   int     `json:"length"`
}

// Extractor fetches pages with a browser identity and runs readability
// over them.
type Extractor struct {
	client    fetch.Getter
	timeout   time.Duration
	sanitizer *bluemonday.Policy
}

// NewClient returns a fetch client that presents itself as a browser.
func NewClient() *fetch.Client {
	c := fetch.NewClient(fetch.BrowserUserAgent)
	c.Accept = "text/html,application/xhtml+xml"
	return c
}

// NewExtractor creates an extractor. A zero timeout means 15 seconds.
func NewExtractor(client fetch.Getter, timeout time.Duration) *Extractor {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{
		client:    client,
		timeout:   timeout,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Extract returns the readable article at rawURL. Any failure (bad URL,
// network error, non-2xx status, nothing extractable) reports false.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Article, bool) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Host == "" {
		return nil, false
	}

	resp, err := e.client.Get(ctx, rawURL, e.timeout)
	if err != nil {
		log.Printf("Article fetch failed for %s: %v", rawURL, err)
		return nil, false
	}
	if !resp.OK() {
		log.Printf("Article fetch for %s returned HTTP %d", rawURL, resp.StatusCode)
		return nil, false
	}

	page, err := withBase(resp.Body, pageURL)
	if err != nil {
		log.Printf("Failed to parse %s: %v", rawURL, err)
		return nil, false
	}

	parsed, err := readability.FromReader(strings.NewReader(page), pageURL)
	if err != nil {
		log.Printf("No readable content in %s: %v", rawURL, err)
		return nil, false
	}

	body := strings.TrimSpace(e.sanitizer.Sanitize(parsed.Content))
	if body == "" {
		return nil, false
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = "Untitled"
	}
	return &Article{
		Title:    title,
		Content:  body,
		Excerpt:  optional(parsed.Excerpt),
		Byline:   optional(parsed.Byline),
		SiteName: optional(parsed.SiteName),
		Length:   parsed.Length,
	}, true
}

// withBase parses the page and inserts a <base> so relative links and
// images resolve against the page URL.
func withBase(body []byte, pageURL *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("head base").Remove()
	doc.Find("head").PrependHtml(`<base href="` + html.EscapeString(pageURL.String()) + `">`)
	return doc.Html()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
