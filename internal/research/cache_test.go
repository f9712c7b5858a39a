package research

import (
	"testing"

	"github.com/thinhkhuat/scribe/internal/provider"
)

func TestCachePutAndSearch(t *testing.T) {
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	err = c.Put(
		provider.Source{ID: "1", Title: "Go concurrency patterns", Snippet: "goroutines and channels"},
		provider.Source{ID: "2", Title: "Rust ownership", Snippet: "borrow checker explained"},
	)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 cached sources, got %d", c.Len())
	}

	hits, err := c.Search("concurrency goroutines", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].ID != "1" {
		t.Fatalf("expected the Go article first, got %s", hits[0].ID)
	}
}

func TestCacheSkipsSourcesWithoutID(t *testing.T) {
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if err := c.Put(provider.Source{Title: "no id"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestCacheMissIsNotAnError(t *testing.T) {
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	hits, err := c.Search("nothing indexed yet", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}
