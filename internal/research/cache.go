// Package research provides source gathering support for the section
// researchers: an in-memory full-text cache of previously retrieved
// sources and an article-content fetcher.
package research

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/thinhkhuat/scribe/internal/provider"
)

// Cache indexes retrieved sources for the lifetime of the process so
// overlapping section directives within and across runs can reuse
// earlier search results before spending provider quota.
type Cache struct {
	index bleve.Index

	mu      sync.RWMutex
	sources map[string]provider.Source
}

func NewCache() (*Cache, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating source index: %w", err)
	}
	return &Cache{index: idx, sources: make(map[string]provider.Source)}, nil
}

type cacheDoc struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

// Put indexes sources. Sources without an ID are skipped.
func (c *Cache) Put(sources ...provider.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range sources {
		if s.ID == "" {
			continue
		}
		doc := cacheDoc{Title: s.Title, Snippet: s.Snippet, Content: s.Content}
		if err := c.index.Index(s.ID, doc); err != nil {
			return fmt.Errorf("indexing source %s: %w", s.ID, err)
		}
		c.sources[s.ID] = s
	}
	return nil
}

// Search returns up to limit cached sources matching the query, best
// match first. An empty result is not an error; callers fall through to
// external search.
func (c *Cache) Search(query string, limit int) ([]provider.Source, error) {
	if limit <= 0 {
		limit = 5
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching source index: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []provider.Source
	for _, hit := range res.Hits {
		if s, ok := c.sources[hit.ID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Len reports how many sources are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}
