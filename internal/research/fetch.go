package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/thinhkhuat/scribe/internal/agent/config"
)

const fetchUserAgent = "Mozilla/5.0 (compatible; scribe/1.0)"

// Fetcher retrieves article pages over plain HTTP and extracts their
// main text via readability. It enriches search snippets with full
// content before synthesis; failures degrade to the snippet, they never
// fail a section.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxChars int
}

func NewFetcher(cfg config.ResearchConfig) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxChars := cfg.FetchMaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		maxChars: maxChars,
	}
}

// Fetch downloads link and returns the extracted main text, truncated
// to the configured character budget.
func (f *Fetcher) Fetch(ctx context.Context, link string) (string, error) {
	if strings.TrimSpace(link) == "" {
		return "", errors.New("invalid url")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %s", link, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(link))
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", link, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.maxChars {
		text = text[:f.maxChars]
	}
	return text, nil
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
