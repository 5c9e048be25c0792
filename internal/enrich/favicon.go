package enrich

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/TobiSchelling/benreader/internal/fetch"
)

// DefaultFaviconService returns a site's favicon for ?domain=<host>&sz=64.
const DefaultFaviconService = "https://www.google.com/s2/favicons"

// Favicons derives brand colors from favicons served by a lookup service.
type Favicons struct {
	client  fetch.Getter
	service string
	timeout time.Duration
}

// NewFavicons creates a favicon lookup. An empty service disables lookups.
func NewFavicons(client fetch.Getter, service string, timeout time.Duration) *Favicons {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Favicons{client: client, service: service, timeout: timeout}
}

// Hostname returns the host of the feed's site URL, falling back to its
// document URL.
func Hostname(htmlURL, xmlURL string) string {
	raw := htmlURL
	if raw == "" {
		raw = xmlURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// BrandColor fetches the favicon for the feed's host and extracts a
// dominant color. Every failure reports false.
func (f *Favicons) BrandColor(ctx context.Context, htmlURL, xmlURL string) (string, bool) {
	if f.service == "" {
		return "", false
	}
	host := Hostname(htmlURL, xmlURL)
	if host == "" {
		return "", false
	}

	u, err := url.Parse(f.service)
	if err != nil {
		log.Printf("Invalid favicon service %q: %v", f.service, err)
		return "", false
	}
	q := u.Query()
	q.Set("domain", host)
	q.Set("sz", "64")
	u.RawQuery = q.Encode()

	resp, err := f.client.Get(ctx, u.String(), f.timeout)
	if err != nil {
		log.Printf("Favicon fetch failed for %s: %v", host, err)
		return "", false
	}
	if !resp.OK() {
		return "", false
	}
	return DominantColor(resp.Body)
}
