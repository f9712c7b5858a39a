package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/thinhkhuat/scribe/internal/agent/config"
)

// BraveSearcher implements Searcher using the Brave Search API.
type BraveSearcher struct {
	spec config.ProviderSpec
	http *HTTPClient
}

func NewBraveSearcher(spec config.ProviderSpec) (*BraveSearcher, error) {
	if spec.APIKey == "" {
		return nil, fmt.Errorf("provider %s: API key not configured", spec.Name)
	}
	return &BraveSearcher{spec: spec, http: NewHTTPClient()}, nil
}

func (b *BraveSearcher) Search(ctx context.Context, query string, maxResults int) ([]Source, error) {
	var resp struct {
		Web struct {
			Results []struct{ Title, URL, Description string } `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": b.spec.APIKey}
	endpoint := b.spec.Endpoint
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	u := fmt.Sprintf("%s?q=%s&count=%d", endpoint, url.QueryEscape(query), capResults(maxResults, b.spec.MaxResults, 10))
	if err := b.http.DoJSON(ctx, "GET", u, headers, nil, &resp); err != nil {
		return nil, err
	}
	var out []Source
	for _, r := range resp.Web.Results {
		out = append(out, Source{
			ID:          uuid.NewString(),
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Description,
			ExtractedAt: time.Now(),
			Tags:        []string{"brave"},
		})
	}
	return out, nil
}

// SerperSearcher implements Searcher using serper.dev.
type SerperSearcher struct {
	spec config.ProviderSpec
	http *HTTPClient
}

func NewSerperSearcher(spec config.ProviderSpec) (*SerperSearcher, error) {
	if spec.APIKey == "" {
		return nil, fmt.Errorf("provider %s: API key not configured", spec.Name)
	}
	return &SerperSearcher{spec: spec, http: NewHTTPClient()}, nil
}

func (s *SerperSearcher) Search(ctx context.Context, query string, maxResults int) ([]Source, error) {
	var resp struct {
		Organic []struct{ Title, Link, Snippet string } `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.spec.APIKey}
	endpoint := s.spec.Endpoint
	if endpoint == "" {
		endpoint = "https://google.serper.dev/search"
	}
	body := map[string]any{"q": query, "num": capResults(maxResults, s.spec.MaxResults, 10)}
	if err := s.http.DoJSON(ctx, "POST", endpoint, headers, body, &resp); err != nil {
		return nil, err
	}
	var out []Source
	for _, r := range resp.Organic {
		out = append(out, Source{
			ID:          uuid.NewString(),
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			ExtractedAt: time.Now(),
			Tags:        []string{"serper"},
		})
	}
	return out, nil
}

func capResults(requested, specMax, def int) int {
	n := requested
	if n <= 0 {
		n = specMax
	}
	if n <= 0 {
		n = def
	}
	if specMax > 0 && n > specMax {
		n = specMax
	}
	return n
}

// DeduplicateSources merges sources by URL (title fallback), keeping
// the first occurrence and preserving input order.
func DeduplicateSources(in []Source) []Source {
	seen := make(map[string]bool, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		key := s.URL
		if key == "" {
			key = s.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
