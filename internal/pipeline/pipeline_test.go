package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/benreader/internal/database"
	"github.com/TobiSchelling/benreader/internal/feed"
	"github.com/TobiSchelling/benreader/internal/fetch"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// feedServer serves named documents under /feeds/<name> and a favicon
// service under /favicon.
type feedServer struct {
	*httptest.Server
	docs     map[string]string
	statuses map[string]int
	favicon  []byte
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{docs: map[string]string{}, statuses: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/feeds/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/feeds/")
		if code, ok := fs.statuses[name]; ok {
			w.WriteHeader(code)
			return
		}
		doc, ok := fs.docs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(doc))
	})
	mux.HandleFunc("/p/gated", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="paywall">Subscribe</div></body></html>`))
	})
	mux.HandleFunc("/p/free", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Free for all.</p></body></html>`))
	})
	mux.HandleFunc("/favicon", func(w http.ResponseWriter, r *http.Request) {
		if fs.favicon == nil {
			http.NotFound(w, r)
			return
		}
		w.Write(fs.favicon)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) url(name string) string {
	return fs.URL + "/feeds/" + name
}

func (fs *feedServer) pipeline(db *database.DB) *Pipeline {
	return New(db, fetch.NewClient(""), Options{
		FeedTimeout:    2 * time.Second,
		PaywallTimeout: 2 * time.Second,
		FaviconTimeout: 2 * time.Second,
		FaviconService: fs.URL + "/favicon",
	})
}

func rssDoc(channelExtra string, items ...string) string {
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>` +
		channelExtra + strings.Join(items, "") + `</channel></rss>`
}

func item(guid, title string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://example.com/%s</link><guid>%s</guid>
<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description></item>`, title, guid, guid)
}

func addFeed(t *testing.T, db *database.DB, xmlURL string) int64 {
	t.Helper()
	folderID, err := db.CreateFolder("Blogs", 0)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	id, err := db.CreateFeed("Test", xmlURL, "https://example.com", folderID)
	if err != nil {
		t.Fatalf("CreateFeed: %v", err)
	}
	return id
}

func TestRefreshFeedStoresPosts(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["a"] = rssDoc("", item("g1", "First"), item("g2", "Second"))
	id := addFeed(t, db, srv.url("a"))

	res, err := srv.pipeline(db).RefreshFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected refresh failure: %v", res.Err)
	}
	if res.Fetched != 2 || res.New != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	post, _ := db.GetPostByGUID("g1")
	if post == nil {
		t.Fatal("expected post g1")
	}
	if post.Content == nil || *post.Content != "Hello world" {
		t.Errorf("expected normalized content, got %v", post.Content)
	}
	if post.WordCount == nil || *post.WordCount != 2 {
		t.Errorf("expected word count 2, got %v", post.WordCount)
	}
	if post.IsRead || post.IsStarred || post.IsPaywalled {
		t.Errorf("expected fresh flags: %+v", post)
	}

	f, _ := db.GetFeed(id)
	if f.LastFetchedAt == nil {
		t.Error("expected lastFetchedAt to be stamped")
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["a"] = rssDoc("", item("g1", "First"), item("g2", "Second"))
	id := addFeed(t, db, srv.url("a"))
	p := srv.pipeline(db)

	if _, err := p.RefreshFeed(context.Background(), id); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	srv.docs["a"] = rssDoc("", item("g1", "First (edited)"), item("g2", "Second"))
	res, err := p.RefreshFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if res.New != 0 {
		t.Errorf("expected no new posts, got %d", res.New)
	}

	posts, _ := db.ListPosts(database.PostFilter{})
	if len(posts) != 2 {
		t.Errorf("expected 2 posts, got %d", len(posts))
	}
	post, _ := db.GetPostByGUID("g1")
	if post.Title != "First" {
		t.Errorf("title must not change on re-ingestion, got %q", post.Title)
	}
}

func TestRefreshDedupKeepsFirstTitle(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["a"] = rssDoc("", item("dup", "A"), item("dup", "B"))
	id := addFeed(t, db, srv.url("a"))

	if _, err := srv.pipeline(db).RefreshFeed(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posts, _ := db.ListPosts(database.PostFilter{})
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Title != "A" {
		t.Errorf("expected title A, got %q", posts[0].Title)
	}
}

func TestRefreshCapsItems(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	items := make([]string, 80)
	for i := range items {
		items[i] = item(fmt.Sprintf("g%d", i), fmt.Sprintf("Post %d", i))
	}
	srv.docs["big"] = rssDoc("", items...)
	id := addFeed(t, db, srv.url("big"))

	res, err := srv.pipeline(db).RefreshFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.New != feed.MaxItems {
		t.Errorf("expected %d new posts, got %d", feed.MaxItems, res.New)
	}
	if p, _ := db.GetPostByGUID("g50"); p != nil {
		t.Error("item 51 should not be stored")
	}
}

func TestRefreshHTTPErrorIsNoop(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.statuses["down"] = http.StatusInternalServerError
	id := addFeed(t, db, srv.url("down"))

	res, err := srv.pipeline(db).RefreshFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("a failed fetch is not a caller error, got %v", err)
	}
	if !errors.Is(res.Err, fetch.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", res.Err)
	}
	if res.New != 0 || res.Fetched != 0 {
		t.Errorf("expected no effect, got %+v", res)
	}
	f, _ := db.GetFeed(id)
	if f.LastFetchedAt != nil {
		t.Error("lastFetchedAt must be unchanged on failure")
	}
	if posts, _ := db.ListPosts(database.PostFilter{}); len(posts) != 0 {
		t.Errorf("expected no posts, got %d", len(posts))
	}
}

func TestRefreshParseErrors(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["html"] = `<html><body>not a feed</body></html>`
	srv.docs["empty"] = rssDoc("")
	htmlID := addFeed(t, db, srv.url("html"))
	emptyID, _ := db.CreateFeed("Empty", srv.url("empty"), "", 1)
	p := srv.pipeline(db)

	if res, err := p.RefreshFeed(context.Background(), htmlID); err != nil || !errors.Is(res.Err, feed.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v / %+v", err, res)
	}
	if res, err := p.RefreshFeed(context.Background(), emptyID); err != nil || !errors.Is(res.Err, feed.ErrExtractionEmpty) {
		t.Errorf("expected ErrExtractionEmpty, got %v / %+v", err, res)
	}
	f, _ := db.GetFeed(emptyID)
	if f.LastFetchedAt != nil {
		t.Error("an empty feed is not stamped")
	}
}

func TestRefreshTruncatedFeedIsNoop(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	full := rssDoc("", item("g1", "One"), item("g2", "Two"))
	srv.docs["cut"] = full[:strings.Index(full, "<guid>g2")]
	id := addFeed(t, db, srv.url("cut"))

	res, err := srv.pipeline(db).RefreshFeed(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(res.Err, feed.ErrParse) {
		t.Errorf("expected ErrParse, got %v", res.Err)
	}
	if posts, _ := db.ListPosts(database.PostFilter{}); len(posts) != 0 {
		t.Errorf("expected no posts from a truncated document, got %d", len(posts))
	}
	f, _ := db.GetFeed(id)
	if f.LastFetchedAt != nil {
		t.Error("lastFetchedAt must be unchanged for a truncated document")
	}
}

func TestRefreshFeedMissing(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	if _, err := srv.pipeline(db).RefreshFeed(context.Background(), 99); !errors.Is(err, ErrFeedNotFound) {
		t.Errorf("expected ErrFeedNotFound, got %v", err)
	}
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.statuses["down"] = http.StatusInternalServerError
	srv.docs["ok"] = rssDoc("", item("g1", "One"))
	downID := addFeed(t, db, srv.url("down"))
	okID, _ := db.CreateFeed("OK", srv.url("ok"), "", 1)

	res := srv.pipeline(db).RefreshAll(context.Background())
	if res.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", res.Failed)
	}
	if res.NewPosts != 1 {
		t.Errorf("expected 1 new post, got %d", res.NewPosts)
	}
	if len(res.Feeds) != 2 || res.Feeds[0].FeedID != downID || res.Feeds[0].Err == nil {
		t.Errorf("unexpected per-feed results: %+v", res.Feeds)
	}

	down, _ := db.GetFeed(downID)
	ok, _ := db.GetFeed(okID)
	if down.LastFetchedAt != nil {
		t.Error("failed feed must not be stamped")
	}
	if ok.LastFetchedAt == nil {
		t.Error("successful feed must be stamped")
	}
}

func TestRefreshAllCancelled(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["ok"] = rssDoc("", item("g1", "One"))
	addFeed(t, db, srv.url("ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := srv.pipeline(db).RefreshAll(ctx)
	if len(res.Feeds) != 0 {
		t.Errorf("expected no feeds processed, got %d", len(res.Feeds))
	}
}

func TestRefreshDetectsPaywalls(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["substack"] = rssDoc(`<generator>Substack</generator>`,
		fmt.Sprintf(`<item><title>Gated</title><link>%s/p/gated</link><guid>gated</guid></item>`, srv.URL),
		fmt.Sprintf(`<item><title>Free</title><link>%s/p/free</link><guid>free</guid></item>`, srv.URL),
	)
	srv.docs["plain"] = rssDoc("",
		fmt.Sprintf(`<item><title>Gated elsewhere</title><link>%s/p/gated</link><guid>plain-gated</guid></item>`, srv.URL),
	)
	subID := addFeed(t, db, srv.url("substack"))
	plainID, _ := db.CreateFeed("Plain", srv.url("plain"), "", 1)
	p := srv.pipeline(db)

	if _, err := p.RefreshFeed(context.Background(), subID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.RefreshFeed(context.Background(), plainID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gated, _ := db.GetPostByGUID("gated")
	free, _ := db.GetPostByGUID("free")
	plain, _ := db.GetPostByGUID("plain-gated")
	if !gated.IsPaywalled {
		t.Error("expected gated post to be paywalled")
	}
	if free.IsPaywalled {
		t.Error("expected free post not to be paywalled")
	}
	if plain.IsPaywalled {
		t.Error("posts of non-platform feeds are never checked")
	}
}

func TestRefreshEnrichesFeedOnce(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.favicon = bytes.Repeat([]byte{200, 40, 40}, 10)
	srv.docs["a"] = rssDoc(`<image><url>https://example.com/logo.png</url></image>`, item("g1", "One"))
	id := addFeed(t, db, srv.url("a"))
	p := srv.pipeline(db)

	if _, err := p.RefreshFeed(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := db.GetFeed(id)
	if f.ImageURL == nil || *f.ImageURL != "https://example.com/logo.png" {
		t.Errorf("expected channel image, got %v", f.ImageURL)
	}
	if f.BrandColor == nil || *f.BrandColor != "#c02020" {
		t.Errorf("expected brand color, got %v", f.BrandColor)
	}

	srv.docs["a"] = rssDoc(`<image><url>https://example.com/new.png</url></image>`, item("g1", "One"))
	srv.favicon = bytes.Repeat([]byte{40, 40, 200}, 10)
	if _, err := p.RefreshFeed(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ = db.GetFeed(id)
	if *f.ImageURL != "https://example.com/logo.png" || *f.BrandColor != "#c02020" {
		t.Errorf("enrichment must not be overwritten: %v %v", *f.ImageURL, *f.BrandColor)
	}
}

func TestRefreshWithoutFavicon(t *testing.T) {
	db := openTestDB(t)
	srv := newFeedServer(t)
	srv.docs["a"] = rssDoc("", item("g1", "One"))
	id := addFeed(t, db, srv.url("a"))

	if _, err := srv.pipeline(db).RefreshFeed(context.Background(), id); err != nil {
		t.Fatalf("favicon failure must not fail the refresh: %v", err)
	}
	f, _ := db.GetFeed(id)
	if f.BrandColor != nil {
		t.Errorf("expected no brand color, got %v", *f.BrandColor)
	}
}
