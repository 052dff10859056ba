package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Blog</title>
    <link>https://example.com</link>
    <description>A test feed</description>
    <item>
      <title>Newest post</title>
      <link>https://example.com/post/3</link>
      <pubDate>Thu, 19 Feb 2026 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Middle post</title>
      <link>https://example.com/post/2</link>
      <pubDate>Thu, 19 Feb 2026 09:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Oldest post</title>
      <link>https://example.com/post/1</link>
      <pubDate>Thu, 19 Feb 2026 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const testAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <updated>2026-02-19T09:00:00Z</updated>
  </entry>
</feed>`

func serveFeed(content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, content)
	}))
}

func TestFetchOldestFirst(t *testing.T) {
	srv := serveFeed(testRSS)
	defer srv.Close()

	items, err := NewFetcher(5 * time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[0].Title != "Oldest post" || items[2].Title != "Newest post" {
		t.Errorf("not oldest-first: %s .. %s", items[0].Title, items[2].Title)
	}
	if items[0].Origin != "Test Blog" {
		t.Errorf("origin = %q", items[0].Origin)
	}
	if items[0].Link() != "https://example.com/post/1" {
		t.Errorf("link = %q", items[0].Link())
	}
	if len(items[0].Hash) != 8 {
		t.Errorf("hash = %q, want 8 hex chars", items[0].Hash)
	}
}

func TestFetchAtom(t *testing.T) {
	srv := serveFeed(testAtom)
	defer srv.Close()

	items, err := NewFetcher(5 * time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Atom entry" {
		t.Fatalf("items = %+v", items)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, err := NewFetcher(5 * time.Second).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for HTTP 410")
	}
}

func TestFetchMalformedDocument(t *testing.T) {
	srv := serveFeed("this is not a feed")
	defer srv.Close()

	if _, err := NewFetcher(5 * time.Second).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestHashLinksStable(t *testing.T) {
	a := HashLinks([]string{"https://example.com/post/1"})
	b := HashLinks([]string{"https://example.com/post/1"})
	c := HashLinks([]string{"https://example.com/post/2"})

	if a != b {
		t.Errorf("hash not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different links produced the same hash")
	}
}
