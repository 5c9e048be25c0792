package opml

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type createdFeed struct {
	title, xmlURL, htmlURL string
	folderID               int64
}

type fakeStore struct {
	folders    []string
	orders     []int
	feeds      []createdFeed
	failFolder string
	failFeed   string
}

func (s *fakeStore) CreateFolder(name string, order int) (int64, error) {
	if name == s.failFolder {
		return 0, errors.New("boom")
	}
	s.folders = append(s.folders, name)
	s.orders = append(s.orders, order)
	return int64(len(s.folders)), nil
}

func (s *fakeStore) CreateFeed(title, xmlURL, htmlURL string, folderID int64) (int64, error) {
	if xmlURL == s.failFeed {
		return 0, errors.New("boom")
	}
	s.feeds = append(s.feeds, createdFeed{title, xmlURL, htmlURL, folderID})
	return int64(len(s.feeds)), nil
}

const blogsOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Blogs">
      <outline text="A" xmlUrl="https://a.example.com/feed" htmlUrl="https://a.example.com"/>
      <outline xmlUrl="https://b.example.com/feed"/>
    </outline>
  </body>
</opml>`

func TestImportBlogs(t *testing.T) {
	doc, err := Parse(strings.NewReader(blogsOPML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := &fakeStore{}
	res, err := Import(context.Background(), doc, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.folders) != 1 || store.folders[0] != "Blogs" || store.orders[0] != 0 {
		t.Fatalf("expected folder Blogs at order 0, got %v %v", store.folders, store.orders)
	}
	if len(store.feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(store.feeds))
	}
	if store.feeds[0] != (createdFeed{"A", "https://a.example.com/feed", "https://a.example.com", 1}) {
		t.Errorf("unexpected first feed: %+v", store.feeds[0])
	}
	if store.feeds[1] != (createdFeed{"https://b.example.com/feed", "https://b.example.com/feed", "", 1}) {
		t.Errorf("unexpected second feed: %+v", store.feeds[1])
	}
	if res.Folders != 1 || res.Feeds != 2 || res.Skipped != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestPlanNaming(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<opml><body>
  <outline title="Titled" text="Texted"><outline title="T" text="X" xmlUrl="https://t.example.com"/></outline>
  <outline><outline text="no url"/></outline>
  <outline text="Empty"/>
</body></opml>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plans := doc.Plan()
	if len(plans) != 3 {
		t.Fatalf("expected 3 folders, got %d", len(plans))
	}
	if plans[0].Name != "Titled" || plans[0].Feeds[0].Title != "T" {
		t.Errorf("title should win over text: %+v", plans[0])
	}
	if plans[1].Name != "Uncategorized" || len(plans[1].Feeds) != 0 {
		t.Errorf("expected Uncategorized with no feeds: %+v", plans[1])
	}
	if plans[2].Name != "Empty" || plans[2].Order != 2 {
		t.Errorf("expected empty folder at order 2: %+v", plans[2])
	}
}

func TestImportSkipsFailures(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<opml><body>
  <outline text="Bad"><outline xmlUrl="https://x.example.com"/></outline>
  <outline text="Good">
    <outline xmlUrl="https://fail.example.com"/>
    <outline xmlUrl="https://ok.example.com"/>
  </outline>
</body></opml>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := &fakeStore{failFolder: "Bad", failFeed: "https://fail.example.com"}
	res, err := Import(context.Background(), doc, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Folders != 1 || res.Feeds != 1 || res.Skipped != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(store.feeds) != 1 || store.feeds[0].xmlURL != "https://ok.example.com" {
		t.Errorf("unexpected feeds: %+v", store.feeds)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(strings.NewReader("not xml at all <")); err == nil {
		t.Error("expected error for invalid OPML")
	}
}
