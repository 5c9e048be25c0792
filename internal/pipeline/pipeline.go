package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/benreader/internal/config"
	"github.com/TobiSchelling/benreader/internal/content"
	"github.com/TobiSchelling/benreader/internal/database"
	"github.com/TobiSchelling/benreader/internal/enrich"
	"github.com/TobiSchelling/benreader/internal/feed"
	"github.com/TobiSchelling/benreader/internal/fetch"
	"github.com/TobiSchelling/benreader/internal/paywall"
)

// ErrFeedNotFound is returned when refreshing a feed ID that is not stored.
var ErrFeedNotFound = errors.New("feed not found")

// Store is the storage the pipeline reads feeds from and writes posts to.
type Store interface {
	GetFeed(id int64) (*database.Feed, error)
	ListFeeds() ([]database.Feed, error)
	UpdateFeedImage(id int64, imageURL string) error
	UpdateFeedBrandColor(id int64, color string) error
	UpsertPosts(feedID int64, posts []database.NewPost) (*database.UpsertResult, error)
	StampFeedFetched(id int64, at int64) error
}

// FeedResult holds the outcome of refreshing one feed.
type FeedResult struct {
	FeedID         int64
	Title          string
	Fetched        int
	New            int
	PaywallChanged int
	Err            error
}

// Result holds the outcome of a refresh-all run.
type Result struct {
	Feeds    []FeedResult
	Failed   int
	NewPosts int
}

// Options tunes a Pipeline. Zero values fall back to the defaults.
type Options struct {
	FeedTimeout    time.Duration
	PaywallTimeout time.Duration
	FaviconTimeout time.Duration
	FaviconService string
}

// Pipeline refreshes feeds: fetch, parse, enrich, normalize, detect
// paywalls, and store.
type Pipeline struct {
	store       Store
	client      fetch.Getter
	paywall     *paywall.Detector
	favicons    *enrich.Favicons
	feedTimeout time.Duration
	now         func() time.Time
}

// New creates a pipeline over store, issuing all requests through client.
func New(store Store, client fetch.Getter, opts Options) *Pipeline {
	if opts.FeedTimeout == 0 {
		opts.FeedTimeout = 15 * time.Second
	}
	return &Pipeline{
		store:       store,
		client:      client,
		paywall:     paywall.NewDetector(client, opts.PaywallTimeout),
		favicons:    enrich.NewFavicons(client, opts.FaviconService, opts.FaviconTimeout),
		feedTimeout: opts.FeedTimeout,
		now:         time.Now,
	}
}

// NewFromConfig creates a pipeline with a fetch client built from cfg.
func NewFromConfig(cfg *config.Config, store Store) *Pipeline {
	return New(store, fetch.NewClient(cfg.Fetch.UserAgent), Options{
		FeedTimeout:    cfg.Fetch.FeedTimeout,
		PaywallTimeout: cfg.Fetch.PaywallTimeout,
		FaviconTimeout: cfg.Fetch.FaviconTimeout,
		FaviconService: cfg.Enrich.FaviconService,
	})
}

// RefreshFeed refreshes a single feed by ID. A refresh that fails is logged
// and reported in FeedResult.Err with storage left untouched; the returned
// error is only for a feed that cannot be loaded.
func (p *Pipeline) RefreshFeed(ctx context.Context, feedID int64) (*FeedResult, error) {
	f, err := p.store.GetFeed(feedID)
	if err != nil {
		return nil, fmt.Errorf("loading feed %d: %w", feedID, err)
	}
	if f == nil {
		return nil, fmt.Errorf("feed %d: %w", feedID, ErrFeedNotFound)
	}
	fr := p.refreshLogged(ctx, *f)
	return &fr, nil
}

// RefreshAll refreshes every feed in turn. A failing feed is logged and
// counted; it never stops the run.
func (p *Pipeline) RefreshAll(ctx context.Context) *Result {
	r := &Result{}

	feeds, err := p.store.ListFeeds()
	if err != nil {
		log.Printf("Error listing feeds: %v", err)
		return r
	}
	if len(feeds) == 0 {
		log.Println("No feeds to refresh")
		return r
	}

	for _, f := range feeds {
		if ctx.Err() != nil {
			log.Printf("Refresh cancelled after %d of %d feeds", len(r.Feeds), len(feeds))
			break
		}

		fr := p.refreshLogged(ctx, f)
		r.Feeds = append(r.Feeds, fr)
		if fr.Err != nil {
			r.Failed++
			continue
		}
		r.NewPosts += fr.New
	}

	log.Printf("Refresh complete: %d feeds, %d new posts, %d failed", len(r.Feeds), r.NewPosts, r.Failed)
	return r
}

func (p *Pipeline) refreshLogged(ctx context.Context, f database.Feed) FeedResult {
	fr, err := p.refresh(ctx, f)
	if err != nil {
		log.Printf("Failed to refresh %s: %v", f.Title, err)
		return FeedResult{FeedID: f.ID, Title: f.Title, Err: err}
	}
	return *fr
}

func (p *Pipeline) refresh(ctx context.Context, f database.Feed) (*FeedResult, error) {
	resp, err := p.client.Get(ctx, f.XMLURL, p.feedTimeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	doc, err := feed.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.XMLURL, err)
	}

	p.enrichImage(f, doc)
	p.enrichColor(ctx, f)

	now := p.now()
	items := doc.Entries(now)
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", f.XMLURL, feed.ErrExtractionEmpty)
	}

	checkPaywall := paywall.IsPlatform(f.XMLURL, resp.Body)
	posts := make([]database.NewPost, 0, len(items))
	for _, it := range items {
		norm := content.Normalize(it.RawContent)
		paywalled := false
		if checkPaywall && it.Link != "" {
			paywalled = p.paywall.Check(ctx, it.Link)
		}
		posts = append(posts, database.NewPost{
			Title:       it.Title,
			URL:         it.Link,
			Content:     norm.ExcerptPtr(),
			ImageURL:    optional(it.ImageURL),
			PublishedAt: it.PublishedAt.UnixMilli(),
			GUID:        it.GUID,
			Author:      optional(it.Author),
			IsPaywalled: paywalled,
			WordCount:   norm.WordCountPtr(),
		})
	}

	// Paywall checks swallow cancellation; don't store their false negatives.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	up, err := p.store.UpsertPosts(f.ID, posts)
	if err != nil {
		return nil, fmt.Errorf("storing posts for %s: %w", f.Title, err)
	}
	if err := p.store.StampFeedFetched(f.ID, now.UnixMilli()); err != nil {
		log.Printf("Failed to stamp %s as fetched: %v", f.Title, err)
	}

	if up.Inserted > 0 {
		log.Printf("Refreshed %s: %d new posts", f.Title, up.Inserted)
	}
	return &FeedResult{
		FeedID:         f.ID,
		Title:          f.Title,
		Fetched:        len(items),
		New:            up.Inserted,
		PaywallChanged: up.PaywallUpdated,
	}, nil
}

func (p *Pipeline) enrichImage(f database.Feed, doc *feed.Document) {
	if f.ImageURL != nil {
		return
	}
	img := enrich.ChannelImage(doc.Channel)
	if img == "" {
		return
	}
	if err := p.store.UpdateFeedImage(f.ID, img); err != nil {
		log.Printf("Failed to store image for %s: %v", f.Title, err)
	}
}

func (p *Pipeline) enrichColor(ctx context.Context, f database.Feed) {
	if f.BrandColor != nil {
		return
	}
	color, ok := p.favicons.BrandColor(ctx, f.HTMLURL, f.XMLURL)
	if !ok {
		return
	}
	if err := p.store.UpdateFeedBrandColor(f.ID, color); err != nil {
		log.Printf("Failed to store brand color for %s: %v", f.Title, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
