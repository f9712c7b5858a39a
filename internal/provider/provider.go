package provider

import (
	"context"
	"time"
)

// Kind identifies a capability a provider can serve.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindSearch     Kind = "search"
)

// GenRequest is a single text-generation request.
type GenRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenResult carries generated text plus token accounting.
type GenResult struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Source represents one retrieved search result.
type Source struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet,omitempty"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// Generator is the fixed capability interface for text-generation backends.
type Generator interface {
	Generate(ctx context.Context, req GenRequest) (GenResult, error)
}

// Searcher is the fixed capability interface for search backends.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Source, error)
}

// InvocationResult is returned by the failover controller for every
// capability call. Expected failure modes are carried in Err rather than
// surfacing as panics or special control flow, so callers can apply
// their own policy (mark a section failed, abort the run, ...).
type InvocationResult struct {
	Success      bool
	Text         string
	Result       GenResult
	Sources      []Source
	Err          error
	ProviderUsed string
	AttemptCount int
	Elapsed      time.Duration
}
