package archive

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tbernard/feedbot/internal/feed"
)

func openTestArchive(t *testing.T, keep int) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"), keep)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testItem(n int) feed.Item {
	link := fmt.Sprintf("https://example.com/post/%d", n)
	return feed.Item{
		Origin:    "Test Blog",
		Title:     fmt.Sprintf("post %d", n),
		Links:     []string{link},
		Published: time.Now(),
		Hash:      feed.HashLinks([]string{link}),
	}
}

func TestArchiveInsertAndLatest(t *testing.T) {
	a := openTestArchive(t, 100)

	for i := 1; i <= 3; i++ {
		if err := a.Insert(testItem(i)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	items, err := a.Latest(2, "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Latest returned %d items, want 2", len(items))
	}
	// Newest first.
	if items[0].Title != "post 3" || items[1].Title != "post 2" {
		t.Errorf("order = %s, %s", items[0].Title, items[1].Title)
	}
}

func TestArchiveLatestByOrigin(t *testing.T) {
	a := openTestArchive(t, 100)

	other := testItem(9)
	other.Origin = "Other Site"
	if err := a.Insert(other); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := a.Insert(testItem(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	items, err := a.Latest(10, "other")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(items) != 1 || items[0].Origin != "Other Site" {
		t.Fatalf("filtered items = %+v", items)
	}
}

func TestArchiveFindByHash(t *testing.T) {
	a := openTestArchive(t, 100)

	item := testItem(1)
	if err := a.Insert(item); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	found, err := a.FindByHash(item.Hash)
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if found == nil || found.Title != item.Title {
		t.Fatalf("found = %+v", found)
	}

	missing, err := a.FindByHash("00000000")
	if err != nil {
		t.Fatalf("FindByHash failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("unexpected hit: %+v", missing)
	}
}

func TestArchiveTrimsToKeepBound(t *testing.T) {
	a := openTestArchive(t, 5)

	for i := 1; i <= 10; i++ {
		if err := a.Insert(testItem(i)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	items, err := a.Latest(100, "")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("archive holds %d rows, want the keep bound of 5", len(items))
	}
	if items[0].Title != "post 10" {
		t.Errorf("newest = %s", items[0].Title)
	}
}
