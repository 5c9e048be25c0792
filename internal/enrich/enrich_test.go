package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TobiSchelling/benreader/internal/feed"
	"github.com/TobiSchelling/benreader/internal/fetch"
)

func repeat(rgb []byte, n int) []byte {
	return bytes.Repeat(rgb, n)
}

func TestDominantColorDeterministic(t *testing.T) {
	data := repeat([]byte{200, 40, 40}, 10)
	first, ok := DominantColor(data)
	if !ok {
		t.Fatal("expected a color")
	}
	if first != "#c02020" {
		t.Errorf("expected #c02020, got %s", first)
	}
	again, _ := DominantColor(data)
	if again != first {
		t.Errorf("expected identical output, got %s then %s", first, again)
	}
}

func TestDominantColorAllGray(t *testing.T) {
	if c, ok := DominantColor(repeat([]byte{128, 128, 128}, 100)); ok {
		t.Errorf("expected no color for gray image, got %s", c)
	}
}

func TestDominantColorTooFewSamples(t *testing.T) {
	if c, ok := DominantColor([]byte{200, 40, 40, 200, 40}); ok {
		t.Errorf("expected no color, got %s", c)
	}
	if _, ok := DominantColor(nil); ok {
		t.Error("expected no color for empty input")
	}
}

func TestDominantColorDarkensLightColors(t *testing.T) {
	c, ok := DominantColor(repeat([]byte{240, 200, 40}, 20))
	if !ok {
		t.Fatal("expected a color")
	}
	if len(c) != 7 || c[0] != '#' {
		t.Fatalf("expected #rrggbb, got %q", c)
	}
	var r, g, b int
	if _, err := fmt.Sscanf(c, "#%02x%02x%02x", &r, &g, &b); err != nil {
		t.Fatalf("bad color %q: %v", c, err)
	}
	if got := contrast(r, g, b); got < minContrast {
		t.Errorf("contrast %.2f below %.1f for %s", got, minContrast, c)
	}
}

func TestQuantizeClamps(t *testing.T) {
	if q := quantize(250); q != 255 {
		t.Errorf("quantize(250) = %d, want 255", q)
	}
	if q := quantize(16); q != 32 {
		t.Errorf("quantize(16) = %d, want 32", q)
	}
	if q := quantize(15); q != 0 {
		t.Errorf("quantize(15) = %d, want 0", q)
	}
}

func TestRelativeLuminance(t *testing.T) {
	if l := relativeLuminance(255, 255, 255); l < 0.999 || l > 1.001 {
		t.Errorf("white luminance = %f", l)
	}
	if l := relativeLuminance(0, 0, 0); l != 0 {
		t.Errorf("black luminance = %f", l)
	}
}

func parseChannel(t *testing.T, xml string) *feed.Node {
	t.Helper()
	doc, err := feed.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Channel
}

func TestChannelImage(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			"rss image",
			`<rss><channel><image><url>https://e.com/logo.png</url></image><itunes:image href="https://e.com/it.png"/></channel></rss>`,
			"https://e.com/logo.png",
		},
		{
			"itunes image",
			`<rss xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel><itunes:image href="https://e.com/it.png"/></channel></rss>`,
			"https://e.com/it.png",
		},
		{
			"atom logo before icon",
			`<feed xmlns="http://www.w3.org/2005/Atom"><icon>https://e.com/i.ico</icon><logo>https://e.com/l.png</logo></feed>`,
			"https://e.com/l.png",
		},
		{
			"atom icon",
			`<feed xmlns="http://www.w3.org/2005/Atom"><icon>https://e.com/i.ico</icon></feed>`,
			"https://e.com/i.ico",
		},
		{
			"none",
			`<rss><channel><title>x</title></channel></rss>`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChannelImage(parseChannel(t, tt.xml)); got != tt.want {
				t.Errorf("ChannelImage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	if h := Hostname("https://blog.example.com/about", "https://feeds.example.com/rss"); h != "blog.example.com" {
		t.Errorf("expected site host, got %q", h)
	}
	if h := Hostname("", "https://feeds.example.com/rss"); h != "feeds.example.com" {
		t.Errorf("expected feed host, got %q", h)
	}
	if h := Hostname("", "not a url"); h != "" {
		t.Errorf("expected empty host, got %q", h)
	}
}

func TestBrandColor(t *testing.T) {
	var gotDomain string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDomain = r.URL.Query().Get("domain")
		if r.URL.Query().Get("sz") != "64" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write(repeat([]byte{200, 40, 40}, 10))
	}))
	defer srv.Close()

	f := NewFavicons(fetch.NewClient(""), srv.URL, time.Second)
	c, ok := f.BrandColor(context.Background(), "https://blog.example.com", "")
	if !ok {
		t.Fatal("expected a brand color")
	}
	if c != "#c02020" {
		t.Errorf("expected #c02020, got %s", c)
	}
	if gotDomain != "blog.example.com" {
		t.Errorf("expected domain blog.example.com, got %q", gotDomain)
	}
}

func TestBrandColorFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFavicons(fetch.NewClient(""), srv.URL, time.Second)
	if _, ok := f.BrandColor(context.Background(), "https://example.com", ""); ok {
		t.Error("404 favicon should yield no color")
	}
	if _, ok := NewFavicons(fetch.NewClient(""), "", time.Second).BrandColor(context.Background(), "https://example.com", ""); ok {
		t.Error("disabled service should yield no color")
	}
}
