package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxResponseSize caps how much of a response body is read (10MB).
const MaxResponseSize = 10 * 1024 * 1024

const (
	// DefaultUserAgent identifies the reader to feed hosts.
	DefaultUserAgent = "BenReader/1.0"

	// BrowserUserAgent is sent when fetching article pages, which often
	// refuse non-browser clients.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

const maxRedirects = 10

// ErrFetch is wrapped by every network, timeout, or non-2xx failure.
var ErrFetch = errors.New("fetch failed")

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a wrapped ErrFetch for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s: HTTP %d", ErrFetch, r.FinalURL, r.StatusCode)
}

// Getter performs bounded HTTP GETs.
type Getter interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error)
}

// Client is the HTTP GET collaborator shared by feed refresh, paywall
// checks, favicon lookups, and article extraction.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Accept    string
}

// NewClient creates a client that follows up to 10 redirects.
func NewClient(userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		HTTP: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		UserAgent: userAgent,
	}
}

// Get fetches rawURL, giving up after timeout. A non-2xx status is not an
// error here; callers decide with Response.OK or Response.Err.
func (c *Client) Get(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for %s: %v", ErrFetch, rawURL, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Accept != "" {
		req.Header.Set("Accept", c.Accept)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, rawURL, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: %s: response exceeds %d bytes", ErrFetch, rawURL, MaxResponseSize)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
