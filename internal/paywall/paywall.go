package paywall

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/TobiSchelling/benreader/internal/fetch"
)

// markers are substrings whose presence in a post page means the full text
// is gated.
var markers = []string{
	`class="paywall"`,
	`class="paywall-bar"`,
	`"isAccessibleForFree":false`,
	`This post is for paid subscribers`,
	`Subscribe to continue reading`,
}

// IsPlatform reports whether a feed is hosted on a platform whose posts
// are worth checking, judged by its URL and raw document text.
func IsPlatform(xmlURL string, document []byte) bool {
	if strings.Contains(xmlURL, "substack.com") {
		return true
	}
	lower := strings.ToLower(string(document))
	return strings.Contains(lower, "substack") || strings.Contains(lower, "substackcdn.com")
}

// ContainsMarker reports whether a page body carries a paywall marker.
func ContainsMarker(body string) bool {
	for _, m := range markers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// Detector fetches post pages and looks for paywall markers.
type Detector struct {
	client  fetch.Getter
	timeout time.Duration
}

// NewDetector creates a detector that gives up on a page after timeout.
func NewDetector(client fetch.Getter, timeout time.Duration) *Detector {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Detector{client: client, timeout: timeout}
}

// Check fetches link and reports whether it is paywalled. Any failure,
// including a non-2xx status, counts as not paywalled.
func (d *Detector) Check(ctx context.Context, link string) bool {
	if link == "" {
		return false
	}
	resp, err := d.client.Get(ctx, link, d.timeout)
	if err != nil {
		log.Printf("Paywall check failed for %s: %v", link, err)
		return false
	}
	if !resp.OK() {
		return false
	}
	return ContainsMarker(string(resp.Body))
}
